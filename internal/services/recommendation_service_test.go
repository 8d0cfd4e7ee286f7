package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wada/backend/internal/events"
)

func TestRecommendAssignsSequentialRequestIDs(t *testing.T) {
	env := newTestEnv(t)

	for want := 1; want <= 3; want++ {
		assert.Equal(t, want, env.seedRecommendation(t, "room-seq"))
	}

	all, err := env.records.FindByChatRoom(context.Background(), "room-seq")
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, r := range all {
		assert.Equal(t, i+1, r.RequestID)
	}
	// token usage accumulates across the lineage
	assert.EqualValues(t, 1000, all[0].TokenUsage)
	assert.EqualValues(t, 3000, all[2].TokenUsage)
	assert.InDelta(t, 0.03, all[2].Cost, 1e-9)
}

func TestTokenUsageAccumulatesAcrossMixedCalls(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const room = "room-usage"

	first := env.seedRecommendation(t, room)
	second := env.seedRecommendation(t, room)

	env.llm.on("describe_result", `{"summary": "Salary drives terminations"}`)
	_, err := env.dispatch.Dispatch(ctx, room, first, SelectByIndex(0))
	require.NoError(t, err)

	env.llm.on("conversation", `{"answer": "Salary"}`, `{"answer": "Age"}`)
	for _, q := range []string{"Which feature?", "And then?"} {
		_, err := env.converse.Ask(ctx, room, first, q)
		require.NoError(t, err)
	}

	third := env.seedRecommendation(t, room)
	except, err := env.recommend.ExceptChosen(ctx, room, first)
	require.NoError(t, err)

	// six LLM calls of 1000 tokens each
	assert.EqualValues(t, 5000, env.record(t, room, first).TokenUsage)
	assert.EqualValues(t, 2000, env.record(t, room, second).TokenUsage)
	newest := env.record(t, room, third)
	assert.EqualValues(t, 6000, newest.TokenUsage)
	assert.InDelta(t, 0.06, newest.Cost, 1e-9)
	assert.EqualValues(t, 6000, env.record(t, room, except.RequestID).TokenUsage)

	all, err := env.records.FindByChatRoom(ctx, room)
	require.NoError(t, err)
	for _, r := range all {
		assert.LessOrEqual(t, r.TokenUsage, newest.TokenUsage, "requestId %d", r.RequestID)
	}
}

func TestRecommendStoresUnselectedRecommendations(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedRecommendation(t, "room-1")

	rec := env.record(t, "room-1", id)
	require.Len(t, rec.ModelRecommendations, 3)
	for _, m := range rec.ModelRecommendations {
		assert.False(t, m.IsSelected)
	}
	assert.Equal(t, -1, rec.SelectedIndex())
	assert.Nil(t, rec.SelectedModel)
	assert.Empty(t, rec.ConversationRecord)
	assert.Equal(t, []string{"employees.csv"}, rec.FileNames)
	require.Len(t, rec.FileURLs, 1)
	assert.Contains(t, rec.FileURLs[0], "mem://datasets/room-1/")
	assert.Equal(t, "categorical target", rec.ModelRecommendations[0].SelectionReasoning.ModelSelectionReason)
	require.NotNil(t, rec.PurposeUnderstanding)
	assert.Equal(t, []string{"termination probability"}, []string(rec.PurposeUnderstanding.ExpectedOutcomes))

	evts := env.publisher.Events()
	require.Len(t, evts, 1)
	assert.Equal(t, events.TypeRecommended, evts[0].Type)
}

func TestRecommendPromptCarriesSampleAndRequirement(t *testing.T) {
	env := newTestEnv(t)
	env.seedRecommendation(t, "room-prompt")

	require.Len(t, env.llm.prompts, 1)
	prompt := env.llm.prompts[0]
	assert.Contains(t, prompt, "Terminated")
	assert.Contains(t, prompt, DefaultCellValue)
	assert.Contains(t, prompt, "Predict which employees will be terminated")
	assert.Contains(t, prompt, "random_forest_classification")
}

func TestRecommendFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(env *testEnv)
		input    RecommendInput
		wantKind Kind
	}{
		{
			name:     "no recommendations",
			setup:    func(env *testEnv) { env.llm.on("recommend", `{"model_recommendations": []}`) },
			wantKind: KindValidation,
		},
		{
			name: "missing implementation request",
			setup: func(env *testEnv) {
				env.llm.on("recommend", `{"model_recommendations": [{"analysis_name": "x", "implementation_request": {}}]}`)
			},
			wantKind: KindValidation,
		},
		{
			name:     "malformed json",
			setup:    func(env *testEnv) { env.llm.on("recommend", "I cannot help with that") },
			wantKind: KindValidation,
		},
		{
			name:     "llm unavailable",
			setup:    func(env *testEnv) { env.llm.fail("recommend", errors.New("connection refused")) },
			wantKind: KindUpstream,
		},
		{
			name:     "empty requirement",
			input:    RecommendInput{Requirement: " "},
			wantKind: KindValidation,
		},
		{
			name:     "every file unreadable",
			input:    RecommendInput{Files: []UploadedFile{{Name: "empty.csv", Content: []byte("  ")}}},
			wantKind: KindIngestion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.setup != nil {
				tt.setup(env)
			}
			in := RecommendInput{
				SessionID:   "session-1",
				ChatRoomID:  "room-fail",
				Requirement: "predict",
				Files:       []UploadedFile{{Name: "employees.csv", Content: []byte(employeesCSV)}},
			}
			if tt.input.Requirement != "" {
				in.Requirement = tt.input.Requirement
			}
			if tt.input.Files != nil {
				in.Files = tt.input.Files
			}

			_, err := env.recommend.Recommend(context.Background(), in)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, KindOf(err))

			n, err := env.records.Count(context.Background(), "room-fail")
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestRecommendForeignChatRoomIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	env.seedRecommendation(t, "room-owned")

	_, err := env.recommend.Recommend(context.Background(), RecommendInput{
		SessionID:   "intruder",
		ChatRoomID:  "room-owned",
		Requirement: "predict",
		Files:       []UploadedFile{{Name: "employees.csv", Content: []byte(employeesCSV)}},
	})
	assert.True(t, IsKind(err, KindForbidden))
	assert.Equal(t, 1, env.llm.callCount("recommend"))
}

func TestExceptChosenExcludesSelectedRecommendation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.seedDispatched(t, "room-except")

	env.llm.on("conversation", `{"answer": "Because of salary"}`)
	_, err := env.converse.Ask(ctx, "room-except", id, "Why?")
	require.NoError(t, err)

	before := env.record(t, "room-except", id)

	payload, err := env.recommend.ExceptChosen(ctx, "room-except", id)
	require.NoError(t, err)
	assert.Equal(t, id+1, payload.RequestID)
	require.Len(t, payload.ModelRecommendations, 2)
	for _, m := range payload.ModelRecommendations {
		assert.False(t, m.IsSelected)
		assert.NotEqual(t, "Termination Classifier", m.AnalysisName)
	}

	created := env.record(t, "room-except", payload.RequestID)
	assert.Equal(t, id, created.SourceRequestID)
	assert.Equal(t, before.FileURLs, created.FileURLs)
	assert.Equal(t, before.Requirement, created.Requirement)
	assert.Equal(t, before.CreatedTime, created.CreatedTime)
	assert.Empty(t, created.ConversationRecord)
	assert.Nil(t, created.ResultFromModel)
	assert.Equal(t, before.TokenUsage, created.TokenUsage)

	after := env.record(t, "room-except", id)
	assert.Equal(t, before, after)
}

func TestExceptChosenWithNothingLeft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.llm.on("recommend", `{"model_recommendations": [{"analysis_name": "Only", "implementation_request": {"model_choice": "kmeans_clustering_segmentation"}}]}`)
	payload, err := env.recommend.Recommend(ctx, RecommendInput{
		SessionID: "s", ChatRoomID: "room-one", Requirement: "segments",
		Files: []UploadedFile{{Name: "employees.csv", Content: []byte(employeesCSV)}},
	})
	require.NoError(t, err)
	env.llm.on("describe_result", `{"summary": "ok"}`)
	_, err = env.dispatch.Dispatch(ctx, "room-one", payload.RequestID, SelectByIndex(0))
	require.NoError(t, err)

	_, err = env.recommend.ExceptChosen(ctx, "room-one", payload.RequestID)
	assert.True(t, IsKind(err, KindValidation))

	_, err = env.recommend.ExceptChosen(ctx, "room-one", 99)
	assert.True(t, IsKind(err, KindNotFound))
}

func TestAlternativeCreatesNewRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.seedDispatched(t, "room-alt")
	before := env.record(t, "room-alt", id)

	env.llm.on("alternative", `{
	  "model_recommendations": [
	    {"file_name": "employees.csv", "analysis_name": "Anomalous Salaries", "implementation_request": {"model_choice": "kmeans_clustering_anomaly_detection", "feature_columns": ["Salary"]}, "isSelected": true}
	  ],
	  "other_reply": "Switched to anomaly detection"
	}`)

	payload, err := env.recommend.Alternative(ctx, "room-alt", id, "Find unusual salaries instead")
	require.NoError(t, err)
	assert.Equal(t, id+1, payload.RequestID)
	assert.Equal(t, "Switched to anomaly detection", payload.OtherReply)
	require.Len(t, payload.ModelRecommendations, 1)
	assert.False(t, payload.ModelRecommendations[0].IsSelected)

	created := env.record(t, "room-alt", payload.RequestID)
	assert.Equal(t, "Find unusual salaries instead", created.Requirement)
	assert.Equal(t, before.FileURLs, created.FileURLs)
	assert.Equal(t, id, created.SourceRequestID)
	assert.Equal(t, before.DataOverview, created.DataOverview)
	assert.Greater(t, created.TokenUsage, before.TokenUsage)

	prompt := env.llm.prompts[len(env.llm.prompts)-1]
	assert.Contains(t, prompt, "Find unusual salaries instead")
	assert.Contains(t, prompt, before.Requirement)
	assert.Contains(t, prompt, "Termination Classifier")

	assert.Equal(t, before, env.record(t, "room-alt", id))

	_, err = env.recommend.Alternative(ctx, "room-alt", id, "")
	assert.True(t, IsKind(err, KindValidation))
}
