package evaluation

import (
	"errors"

	"github.com/nlsql/nlsql/internal/dataset"
)

var ErrNoQueries = errors.New("no queries to evaluate")

func CompareSQLs(trueSQL, generatedSQL string) bool {
	return dataset.Equal(trueSQL, generatedSQL)
}

func CompareOutputs(trueOutput, result string) bool {
	return dataset.Equal(trueOutput, result)
}

func CompareVariations(nl string, variations []string) bool {
	return dataset.MatchesVariation(nl, variations)
}

// CheckAccuracy returns correct/total, or ErrNoQueries when total is zero.
func CheckAccuracy(correct, total int) (float64, error) {
	if total <= 0 {
		return 0, ErrNoQueries
	}
	return float64(correct) / float64(total), nil
}

type tally struct {
	total          int
	correct        int
	exact          int
	executable     int
	generationTime float64
}

// score applies the scoring policy to one matched entry: an exact SQL match
// counts as correct and exact, otherwise equal outputs count as correct only.
func score(trueSQL, trueOutput, generatedSQL, result string) (correct, exact bool) {
	if CompareSQLs(trueSQL, generatedSQL) {
		return true, true
	}
	return CompareOutputs(trueOutput, result), false
}
