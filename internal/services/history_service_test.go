package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wada/backend/internal/models"
)

func TestHistoryListOneEntryPerChatRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedDispatched(t, "room-a")
	env.seedRecommendation(t, "room-a")
	env.seedRecommendation(t, "room-b")

	list, err := env.history.List(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "room-a", list[0].ChatRoomID)
	assert.Equal(t, "employees.csv", list[0].FileName)
	assert.Equal(t, "Salary drives terminations", list[0].ResultDescription["summary"])
	assert.Equal(t, "room-b", list[1].ChatRoomID)
	assert.Nil(t, list[1].ResultDescription)

	empty, err := env.history.List(ctx, "stranger")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestHistoryDetail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.seedDispatched(t, "room-d")
	env.seedRecommendation(t, "room-d")

	env.llm.on("conversation", `{"answer": "Mostly salary"}`)
	_, err := env.converse.Ask(ctx, "room-d", id, "What matters?")
	require.NoError(t, err)

	records, err := env.history.Detail(ctx, "session-1", "room-d")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].RequestID)
	assert.Equal(t, 2, records[1].RequestID)
	assert.Equal(t, "Mostly salary", records[0].ConversationRecord[0].Answer)
}

func TestHistoryDetailNormalizesLegacyAnswers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.identity.GetOrCreateGuest(ctx, "legacy")
	require.NoError(t, err)
	_, err = env.identity.GetOrCreateChatRoom(ctx, "legacy", "room-legacy")
	require.NoError(t, err)

	now := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, env.records.Insert(ctx, &models.AnalysisRecord{
		ChatRoomID:      "room-legacy",
		RequestID:       1,
		Requirement:     "old",
		SelectedModel:   models.ImplementationRequest{"model_choice": "x"},
		ResultFromModel: map[string]any{"accuracy": 0.5},
		ConversationRecord: []models.ConversationEntry{
			{Question: "q", Answer: `{"choices": [{"message": {"content": "{\"answer\": \"legacy answer\"}"}}]}`, Timestamp: now},
		},
		CreatedTime: now,
		UpdatedTime: now,
	}))

	records, err := env.history.Detail(ctx, "legacy", "room-legacy")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "legacy answer", records[0].ConversationRecord[0].Answer)
}

func TestHistoryAuthorize(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedRecommendation(t, "room-owned")

	assert.NoError(t, env.history.Authorize(ctx, "session-1", "room-owned"))
	assert.True(t, IsKind(env.history.Authorize(ctx, "other", "room-owned"), KindForbidden))
	assert.True(t, IsKind(env.history.Authorize(ctx, "session-1", "room-missing"), KindNotFound))

	_, err := env.history.Detail(ctx, "other", "room-owned")
	assert.True(t, IsKind(err, KindForbidden))
}
