package services

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wada/backend/internal/events"
	"github.com/wada/backend/internal/logger"
	"github.com/wada/backend/internal/models"
	"github.com/wada/backend/internal/observability"
	"github.com/wada/backend/internal/repository"
)

// DispatchResult is returned once a recommendation has been executed.
type DispatchResult struct {
	RequestID     int                          `json:"requestId"`
	SelectedModel models.ImplementationRequest `json:"selectedModel"`
	Result        map[string]any               `json:"result"`
	Description   map[string]any               `json:"description"`
}

// DispatchService executes the chosen recommendation of a record.
type DispatchService struct {
	*Deps
}

func NewDispatchService(deps *Deps) *DispatchService {
	return &DispatchService{Deps: deps}
}

// Dispatch marks one recommendation as selected, runs it on the ML service,
// has the LLM describe the result and stores everything in one update. The
// record is left untouched if any step fails.
func (s *DispatchService) Dispatch(ctx context.Context, chatRoomID string, requestID int, sel Selection) (_ *DispatchResult, err error) {
	const op = "Dispatch"
	defer observe("dispatch", &err)
	ctx, span := observability.StartSpan(ctx, "workflow.dispatch",
		attribute.String("chat_room_id", chatRoomID),
		attribute.Int("request_id", requestID),
	)
	defer span.End()

	log := logger.WithChatRoom(chatRoomID, requestID, "dispatch")

	record, err := s.Records.FindOne(ctx, chatRoomID, requestID)
	if err != nil {
		return nil, storeError(op, err)
	}
	if record.IsDispatched() {
		return nil, newError(KindConflict, op, "record %d was already dispatched; regenerate to choose again", requestID)
	}

	idx, err := resolveSelection(record.ModelRecommendations, sel)
	if err != nil {
		return nil, err
	}
	chosen := record.ModelRecommendations[idx]
	selected := chosen.ImplementationRequest.WithRequiredKeys(models.RequiredImplementationKeys...)
	recs := markSelected(record.ModelRecommendations, idx)
	// the stored recommendation carries the same explicit nulls as selectedModel
	recs[idx].ImplementationRequest = selected.WithRequiredKeys()

	fileURL := record.FileURLFor(chosen.FileName)
	if fileURL == "" {
		return nil, newError(KindValidation, op, "record has no stored files")
	}

	log.WithField("model_choice", selected.ModelChoice()).
		WithField("index", idx).
		Info("Executing selected model")
	result, err := s.ML.Execute(ctx, fileURL, selected)
	if err != nil {
		return nil, wrapError(KindUpstream, op, err)
	}

	system := fmt.Sprintf(DESCRIBE_RESULT_SYSTEM_PROMPT, mustJSON(chosen), mustJSON(selected))
	user := fmt.Sprintf(DESCRIBE_RESULT_USER_PROMPT, mustJSON(result))
	completion, err := s.LLM.Complete(ctx, "describe_result", system, user)
	if err != nil {
		return nil, wrapError(KindUpstream, op, err)
	}
	var description map[string]any
	if err := decodeLLMJSON(completion.Content, &description); err != nil {
		return nil, wrapError(KindUpstream, op, err)
	}

	err = s.Records.ApplyDispatch(ctx, chatRoomID, requestID, repository.DispatchUpdate{
		Recommendations: recs,
		SelectedModel:   selected,
		Result:          result,
		Description:     description,
		Usage:           s.usage(completion.Tokens),
		UpdatedTime:     s.now(),
	})
	if err != nil {
		log.WithError(err).Warn("Dispatch update was not applied")
		return nil, storeError(op, err)
	}

	log.Info("Record dispatched")
	s.publish(ctx, events.Event{
		Type:        events.TypeDispatched,
		ChatRoomID:  chatRoomID,
		RequestID:   requestID,
		ModelChoice: selected.ModelChoice(),
	})
	return &DispatchResult{
		RequestID:     requestID,
		SelectedModel: selected,
		Result:        result,
		Description:   description,
	}, nil
}
