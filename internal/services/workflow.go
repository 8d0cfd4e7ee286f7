package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/wada/backend/internal/events"
	"github.com/wada/backend/internal/logger"
	"github.com/wada/backend/internal/models"
	"github.com/wada/backend/internal/observability"
	"github.com/wada/backend/internal/repository"
)

// Deps bundles the collaborators shared by the analysis workflows.
type Deps struct {
	Identity  repository.IdentityStore
	Records   repository.RecordStore
	Ingestor  Ingestor
	LLM       LLMClient
	ML        MLClient
	Publisher events.Publisher

	// CostPer1KTokens converts LLM token usage into cost.
	CostPer1KTokens float64
	Now             func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

func (d *Deps) usage(tokens int64) repository.Usage {
	return repository.Usage{Tokens: tokens, Cost: float64(tokens) / 1000 * d.CostPer1KTokens}
}

func (d *Deps) publish(ctx context.Context, evt events.Event) {
	if d.Publisher == nil {
		return
	}
	evt.At = d.now()
	if err := d.Publisher.Publish(ctx, evt); err != nil {
		logger.WithChatRoom(evt.ChatRoomID, evt.RequestID, "events").
			WithError(err).
			Warn("Failed to publish analysis event")
	}
}

// chargeTokens adds an LLM call to the chat room's running usage and returns
// the total a new record starts from. Zero tokens reads the current total.
func (d *Deps) chargeTokens(ctx context.Context, chatRoomID string, tokens int64) (repository.Usage, error) {
	return d.Records.ChargeUsage(ctx, chatRoomID, d.usage(tokens))
}

// insertNext allocates the next requestId and inserts record under it.
func (d *Deps) insertNext(ctx context.Context, record *models.AnalysisRecord) error {
	id, err := d.Records.NextRequestID(ctx, record.ChatRoomID)
	if err != nil {
		return err
	}
	record.RequestID = id
	return d.Records.Insert(ctx, record)
}

// storeError maps repository failures onto workflow error kinds.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return wrapError(KindNotFound, op, err)
	case errors.Is(err, repository.ErrForeignChatRoom):
		return wrapError(KindForbidden, op, err)
	case errors.Is(err, repository.ErrInvalidID):
		return wrapError(KindValidation, op, err)
	case errors.Is(err, repository.ErrNotModified):
		return wrapError(KindConsistencyWarning, op, err)
	default:
		return wrapError(KindInternal, op, err)
	}
}

// observe records the workflow outcome once the call returns.
func observe(workflow string, errp *error) {
	outcome := "ok"
	if *errp != nil {
		outcome = string(KindOf(*errp))
	}
	observability.ObserveOutcome(workflow, outcome)
}

// validateRecommendations rejects an LLM response that cannot be dispatched.
func validateRecommendations(op string, recs []models.ModelRecommendation) error {
	if len(recs) == 0 {
		return newError(KindValidation, op, "LLM returned no model recommendations")
	}
	for i, rec := range recs {
		if len(rec.ImplementationRequest) == 0 {
			return newError(KindValidation, op, "recommendation %d has no implementation_request", i)
		}
	}
	return nil
}

// parseRecommendationPayload decodes and validates a recommendation response.
func parseRecommendationPayload(op, content string) (*models.RecommendationPayload, error) {
	var payload models.RecommendationPayload
	if err := decodeLLMJSON(content, &payload); err != nil {
		return nil, wrapError(KindValidation, op, err)
	}
	if err := validateRecommendations(op, payload.ModelRecommendations); err != nil {
		return nil, err
	}
	payload.ModelRecommendations = unselected(payload.ModelRecommendations)
	return &payload, nil
}

func mustJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
