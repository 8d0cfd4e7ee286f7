package services

import (
	"strings"
	"unicode"

	"github.com/wada/backend/internal/models"
)

// Selection identifies the recommendation to execute, either by position or by
// its analysis name / model_choice.
type Selection struct {
	Index *int
	Name  string
}

func SelectByIndex(i int) Selection {
	return Selection{Index: &i}
}

func SelectByName(name string) Selection {
	return Selection{Name: name}
}

// normalizeModelName lower-cases and drops whitespace, underscores and hyphens.
func normalizeModelName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) || r == '_' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// resolveSelection returns the index of the chosen recommendation.
func resolveSelection(recs []models.ModelRecommendation, sel Selection) (int, error) {
	const op = "resolveSelection"
	if len(recs) == 0 {
		return -1, newError(KindSelection, op, "record has no recommendations")
	}

	if sel.Index != nil {
		i := *sel.Index
		if i < 0 || i >= len(recs) {
			return -1, newError(KindSelection, op, "index %d out of range [0,%d)", i, len(recs))
		}
		return i, nil
	}

	want := normalizeModelName(sel.Name)
	if want == "" {
		return -1, newError(KindSelection, op, "no selection given")
	}
	for i, rec := range recs {
		if normalizeModelName(rec.AnalysisName) == want {
			return i, nil
		}
	}
	for i, rec := range recs {
		if normalizeModelName(rec.ImplementationRequest.ModelChoice()) == want {
			return i, nil
		}
	}
	return -1, newError(KindSelection, op, "no recommendation matches %q", sel.Name)
}

// markSelected returns a copy of recs with only index i selected.
func markSelected(recs []models.ModelRecommendation, i int) []models.ModelRecommendation {
	out := models.CloneRecommendations(recs)
	for j := range out {
		out[j].IsSelected = j == i
	}
	return out
}

// unselected returns a copy of recs with every isSelected flag cleared.
func unselected(recs []models.ModelRecommendation) []models.ModelRecommendation {
	return markSelected(recs, -1)
}
