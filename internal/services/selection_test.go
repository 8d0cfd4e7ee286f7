package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wada/backend/internal/models"
)

func sampleRecommendations() []models.ModelRecommendation {
	return []models.ModelRecommendation{
		{AnalysisName: "Termination Classifier", ImplementationRequest: models.ImplementationRequest{"model_choice": "random_forest_classification"}},
		{AnalysisName: "Salary Regression", ImplementationRequest: models.ImplementationRequest{"model_choice": "random_forest_regression"}},
		{AnalysisName: "random_forest_regression", ImplementationRequest: models.ImplementationRequest{"model_choice": "linear_regression"}},
	}
}

func TestResolveSelection(t *testing.T) {
	recs := sampleRecommendations()
	tests := []struct {
		name    string
		sel     Selection
		want    int
		wantErr bool
	}{
		{name: "first index", sel: SelectByIndex(0), want: 0},
		{name: "last index", sel: SelectByIndex(2), want: 2},
		{name: "index past end", sel: SelectByIndex(3), wantErr: true},
		{name: "negative index", sel: SelectByIndex(-1), wantErr: true},
		{name: "analysis name", sel: SelectByName("salary regression"), want: 1},
		{name: "model choice in prose form", sel: SelectByName("Random Forest Classification"), want: 0},
		{name: "hyphenated model choice", sel: SelectByName("linear-regression"), want: 2},
		{name: "analysis name wins over model choice", sel: SelectByName("Random_Forest_Regression"), want: 2},
		{name: "unknown name", sel: SelectByName("gradient boosting"), wantErr: true},
		{name: "empty selection", sel: Selection{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveSelection(recs, tt.sel)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsKind(err, KindSelection))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveSelectionWithoutRecommendations(t *testing.T) {
	_, err := resolveSelection(nil, SelectByIndex(0))
	assert.True(t, IsKind(err, KindSelection))
}

func TestMarkSelectedCopies(t *testing.T) {
	recs := sampleRecommendations()
	recs[2].IsSelected = true

	out := markSelected(recs, 1)
	assert.False(t, out[0].IsSelected)
	assert.True(t, out[1].IsSelected)
	assert.False(t, out[2].IsSelected)
	assert.True(t, recs[2].IsSelected)

	out[0].ImplementationRequest["model_choice"] = "changed"
	assert.Equal(t, "random_forest_classification", recs[0].ImplementationRequest.ModelChoice())

	for _, r := range unselected(recs) {
		assert.False(t, r.IsSelected)
	}
}
