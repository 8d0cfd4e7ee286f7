package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wada/backend/internal/events"
	"github.com/wada/backend/internal/logger"
	"github.com/wada/backend/internal/models"
	"github.com/wada/backend/internal/observability"
)

// ConversationService answers follow-up questions about a dispatched record.
type ConversationService struct {
	*Deps
}

func NewConversationService(deps *Deps) *ConversationService {
	return &ConversationService{Deps: deps}
}

// Ask answers question using the record's result, description and previous
// exchanges, then appends the exchange to the record.
func (s *ConversationService) Ask(ctx context.Context, chatRoomID string, requestID int, question string) (_ *models.ConversationEntry, err error) {
	const op = "Ask"
	defer observe("conversation", &err)
	ctx, span := observability.StartSpan(ctx, "workflow.conversation",
		attribute.String("chat_room_id", chatRoomID),
		attribute.Int("request_id", requestID),
	)
	defer span.End()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, newError(KindValidation, op, "question must not be empty")
	}

	record, err := s.Records.FindOne(ctx, chatRoomID, requestID)
	if err != nil {
		return nil, storeError(op, err)
	}
	if !record.HasAnalysis() {
		return nil, newError(KindNotYetAnalyzed, op, "record %d has no model result yet", requestID)
	}

	system := fmt.Sprintf(CONVERSATION_SYSTEM_PROMPT,
		mustJSON(record.ResultFromModel),
		mustJSON(record.ResultDescription),
		mustJSON(record.ConversationRecord),
	)
	completion, err := s.LLM.Complete(ctx, "conversation", system, question)
	if err != nil {
		return nil, wrapError(KindUpstream, op, err)
	}

	answer := extractAnswer(completion.Content)
	if answer == "" {
		return nil, newError(KindUpstream, op, "LLM returned an empty answer")
	}

	entry := models.ConversationEntry{
		Question:  question,
		Answer:    answer,
		Timestamp: s.now(),
	}
	if err := s.Records.AppendConversation(ctx, chatRoomID, requestID, entry, s.usage(completion.Tokens)); err != nil {
		return nil, storeError(op, err)
	}

	logger.WithChatRoom(chatRoomID, requestID, "conversation").
		WithField("history", len(record.ConversationRecord)+1).
		Info("Conversation extended")
	s.publish(ctx, events.Event{Type: events.TypeConversed, ChatRoomID: chatRoomID, RequestID: requestID})
	return &entry, nil
}

// extractAnswer reads the "answer" field from a JSON reply. Replies that are
// not JSON are used verbatim.
func extractAnswer(content string) string {
	if raw, err := extractJSONFromResponse(content); err == nil && gjson.Valid(raw) {
		return strings.TrimSpace(gjson.Get(raw, "answer").String())
	}
	return strings.TrimSpace(content)
}

// normalizeLegacyAnswer unwraps answers stored as a raw chat completion
// envelope or as an {"answer": ...} JSON document.
func normalizeLegacyAnswer(stored string) string {
	trimmed := strings.TrimSpace(stored)
	if !gjson.Valid(trimmed) {
		return stored
	}
	if content := gjson.Get(trimmed, "choices.0.message.content"); content.Exists() {
		trimmed = strings.TrimSpace(content.String())
	}
	if raw, err := extractJSONFromResponse(trimmed); err == nil && gjson.Valid(raw) {
		if answer := gjson.Get(raw, "answer"); answer.Exists() {
			return answer.String()
		}
	}
	return trimmed
}
