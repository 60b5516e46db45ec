package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type HuggingFaceConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxLength int
	Timeout   time.Duration
}

// HuggingFaceTranslator calls a text2text-generation endpoint hosting a
// pretrained encoder-decoder model. Decoding is greedy with one returned
// sequence.
type HuggingFaceTranslator struct {
	baseURL   string
	apiKey    string
	model     string
	maxLength int
	client    *http.Client
}

type hfParameters struct {
	MaxLength                 int  `json:"max_length"`
	DoSample                  bool `json:"do_sample"`
	EarlyStopping             bool `json:"early_stopping"`
	NumReturnSequences        int  `json:"num_return_sequences"`
	CleanUpTokenizationSpaces bool `json:"clean_up_tokenization_spaces"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
	UseCache     bool `json:"use_cache"`
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
	Options    hfOptions    `json:"options"`
}

func NewHuggingFaceTranslator(cfg HuggingFaceConfig) (*HuggingFaceTranslator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	model := strings.Trim(strings.TrimSpace(cfg.Model), "/")
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	maxLength := cfg.MaxLength
	if maxLength <= 0 {
		maxLength = 512
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HuggingFaceTranslator{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		model:     model,
		maxLength: maxLength,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

func (t *HuggingFaceTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(hfRequest{
		Inputs: req.NaturalLanguage,
		Parameters: hfParameters{
			MaxLength:                 t.maxLength,
			DoSample:                  false,
			EarlyStopping:             true,
			NumReturnSequences:        1,
			CleanUpTokenizationSpaces: true,
		},
		Options: hfOptions{WaitForModel: true, UseCache: false},
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal generation payload: %w", err)
	}

	status, rawRespBody, err := t.do(ctx, body)
	if err != nil {
		return Result{}, err
	}
	if status >= 400 {
		return Result{}, fmt.Errorf("generation failed status=%d body=%s", status, string(rawRespBody))
	}

	var parsed []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode generation response: %w", err)
	}
	if len(parsed) == 0 {
		return Result{}, fmt.Errorf("empty generation output")
	}

	return Result{
		SQL:      strings.TrimSpace(parsed[0].GeneratedText),
		Provider: ProviderHuggingFace,
		Model:    t.model,
	}, nil
}

func (t *HuggingFaceTranslator) do(ctx context.Context, body []byte) (int, []byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/models/"+t.model, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("request generation: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read generation response body: %w", err)
	}
	return resp.StatusCode, rawRespBody, nil
}
