package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

type DevEntry struct {
	Input string `json:"input"`
}

// Example is one labeled query with its paraphrase variants. Labels and the
// group-level importancy and id are passed through verbatim.
type Example struct {
	Variations  []string        `json:"variations"`
	SQLQuery    string          `json:"SQL-Query"`
	Output      string          `json:"output"`
	Labels      json.RawMessage `json:"labels,omitempty"`
	ArabicQuery string          `json:"Arabic-Query"`
}

type Group struct {
	Examples     []Example       `json:"examples"`
	EnglishQuery string          `json:"English-Query"`
	ArabicQuery  string          `json:"Arabic-Query"`
	SQLQuery     string          `json:"SQL-Query"`
	Importancy   json.RawMessage `json:"importancy,omitempty"`
	ID           json.RawMessage `json:"id,omitempty"`
}

func LoadDevEntries(path string) ([]DevEntry, error) {
	var entries []DevEntry
	if err := loadJSON(path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func LoadGroups(path string) ([]Group, error) {
	var groups []Group
	if err := loadJSON(path, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func loadJSON(path string, dst any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read dataset %q: %w", path, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode dataset %q: %w", path, err)
	}
	return nil
}

// Normalize drops every space character and trims surrounding whitespace.
// Comparisons of queries, SQL and outputs all go through it.
func Normalize(value string) string {
	return strings.TrimSpace(strings.ReplaceAll(value, " ", ""))
}

func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
