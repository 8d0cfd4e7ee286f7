package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wada/backend/internal/events"
	"github.com/wada/backend/internal/logger"
	"github.com/wada/backend/internal/models"
	"github.com/wada/backend/internal/observability"
)

// RecommendInput is a new analysis request for a chat room.
type RecommendInput struct {
	SessionID   string
	ChatRoomID  string
	Requirement string
	Files       []UploadedFile
}

// RecommendationService creates new analysis records: the first one from
// uploaded files and later ones by regenerating from an existing record.
type RecommendationService struct {
	*Deps
}

func NewRecommendationService(deps *Deps) *RecommendationService {
	return &RecommendationService{Deps: deps}
}

// Recommend ingests the files, asks the LLM for recommendations and stores
// them as a new record with every entry unselected.
func (s *RecommendationService) Recommend(ctx context.Context, in RecommendInput) (_ *models.RecommendationPayload, err error) {
	const op = "Recommend"
	defer observe("recommend", &err)
	ctx, span := observability.StartSpan(ctx, "workflow.recommend", attribute.String("chat_room_id", in.ChatRoomID))
	defer span.End()

	log := logger.WithChatRoom(in.ChatRoomID, 0, "recommendation")
	if strings.TrimSpace(in.Requirement) == "" {
		return nil, newError(KindValidation, op, "requirement must not be empty")
	}

	guest, err := s.Identity.GetOrCreateGuest(ctx, in.SessionID)
	if err != nil {
		return nil, storeError(op, err)
	}
	if _, err := s.Identity.GetOrCreateChatRoom(ctx, guest.ID, in.ChatRoomID); err != nil {
		return nil, storeError(op, err)
	}

	files, err := s.Ingestor.Ingest(ctx, in.ChatRoomID, in.Files)
	if err != nil {
		if IsKind(err, KindIngestion) {
			return nil, err
		}
		return nil, wrapError(KindIngestion, op, err)
	}
	log.WithField("files", len(files)).Info("Files ingested")

	system := fmt.Sprintf(RECOMMEND_SYSTEM_PROMPT, MODEL_CATALOG)
	user := fmt.Sprintf(RECOMMEND_USER_PROMPT, mustJSON(files), in.Requirement)
	completion, err := s.LLM.Complete(ctx, "recommend", system, user)
	if err != nil {
		return nil, wrapError(KindUpstream, op, err)
	}

	payload, err := parseRecommendationPayload(op, completion.Content)
	if err != nil {
		log.WithError(err).Warn("LLM recommendation rejected")
		return nil, err
	}

	total, err := s.chargeTokens(ctx, in.ChatRoomID, completion.Tokens)
	if err != nil {
		return nil, storeError(op, err)
	}

	now := s.now()
	record := &models.AnalysisRecord{
		ChatRoomID:           in.ChatRoomID,
		Requirement:          in.Requirement,
		FileURLs:             make([]string, 0, len(files)),
		FileNames:            make([]string, 0, len(files)),
		PurposeUnderstanding: payload.PurposeUnderstanding,
		DataOverview:         payload.DataOverview,
		ModelRecommendations: payload.ModelRecommendations,
		ConversationRecord:   []models.ConversationEntry{},
		TokenUsage:           total.Tokens,
		Cost:                 total.Cost,
		CreatedTime:          now,
		UpdatedTime:          now,
	}
	for _, f := range files {
		record.FileURLs = append(record.FileURLs, f.URL)
		record.FileNames = append(record.FileNames, f.FileName)
	}

	if err := s.insertNext(ctx, record); err != nil {
		return nil, storeError(op, err)
	}
	payload.RequestID = record.RequestID

	log.WithField("request_id", record.RequestID).
		WithField("recommendations", len(record.ModelRecommendations)).
		Info("Recommendation record created")
	s.publish(ctx, events.Event{Type: events.TypeRecommended, ChatRoomID: in.ChatRoomID, RequestID: record.RequestID})
	return payload, nil
}

// ExceptChosen copies a record without its selected recommendation into a new
// record. The source record is not modified.
func (s *RecommendationService) ExceptChosen(ctx context.Context, chatRoomID string, requestID int) (_ *models.RecommendationPayload, err error) {
	const op = "ExceptChosen"
	defer observe("except_chosen", &err)
	ctx, span := observability.StartSpan(ctx, "workflow.except_chosen", attribute.String("chat_room_id", chatRoomID))
	defer span.End()

	source, err := s.Records.FindOne(ctx, chatRoomID, requestID)
	if err != nil {
		return nil, storeError(op, err)
	}

	remaining := make([]models.ModelRecommendation, 0, len(source.ModelRecommendations))
	for _, rec := range models.CloneRecommendations(source.ModelRecommendations) {
		if !rec.IsSelected {
			remaining = append(remaining, rec)
		}
	}
	if len(remaining) == 0 {
		return nil, newError(KindValidation, op, "no recommendations left after excluding the chosen one")
	}

	total, err := s.chargeTokens(ctx, chatRoomID, 0)
	if err != nil {
		return nil, storeError(op, err)
	}

	record := regenerated(source, s.now())
	record.Requirement = source.Requirement
	record.ModelRecommendations = remaining
	record.CreatedTime = source.CreatedTime
	record.TokenUsage = total.Tokens
	record.Cost = total.Cost

	if err := s.insertNext(ctx, record); err != nil {
		return nil, storeError(op, err)
	}

	logger.WithChatRoom(chatRoomID, record.RequestID, "recommendation").
		WithField("source_request_id", requestID).
		Info("Record regenerated without chosen recommendation")
	s.publish(ctx, events.Event{Type: events.TypeRegenerated, ChatRoomID: chatRoomID, RequestID: record.RequestID, SourceRequestID: requestID})
	return models.PayloadFromRecord(record), nil
}

// Alternative asks the LLM for new recommendations under a revised requirement
// and stores them as a new record. The source record is not modified.
func (s *RecommendationService) Alternative(ctx context.Context, chatRoomID string, requestID int, newRequirement string) (_ *models.RecommendationPayload, err error) {
	const op = "Alternative"
	defer observe("alternative", &err)
	ctx, span := observability.StartSpan(ctx, "workflow.alternative", attribute.String("chat_room_id", chatRoomID))
	defer span.End()

	if strings.TrimSpace(newRequirement) == "" {
		return nil, newError(KindValidation, op, "new requirement must not be empty")
	}

	source, err := s.Records.FindOne(ctx, chatRoomID, requestID)
	if err != nil {
		return nil, storeError(op, err)
	}

	system := fmt.Sprintf(ALTERNATIVE_SYSTEM_PROMPT, MODEL_CATALOG)
	user := fmt.Sprintf(ALTERNATIVE_USER_PROMPT,
		source.Requirement,
		mustJSON(source.DataOverview),
		mustJSON(source.ModelRecommendations),
		newRequirement,
	)
	completion, err := s.LLM.Complete(ctx, "alternative", system, user)
	if err != nil {
		return nil, wrapError(KindUpstream, op, err)
	}

	payload, err := parseRecommendationPayload(op, completion.Content)
	if err != nil {
		return nil, err
	}

	total, err := s.chargeTokens(ctx, chatRoomID, completion.Tokens)
	if err != nil {
		return nil, storeError(op, err)
	}

	record := regenerated(source, s.now())
	record.Requirement = newRequirement
	record.ModelRecommendations = payload.ModelRecommendations
	if payload.PurposeUnderstanding != nil {
		record.PurposeUnderstanding = payload.PurposeUnderstanding
	}
	if len(payload.DataOverview) > 0 {
		record.DataOverview = payload.DataOverview
	}
	record.TokenUsage = total.Tokens
	record.Cost = total.Cost

	if err := s.insertNext(ctx, record); err != nil {
		return nil, storeError(op, err)
	}

	logger.WithChatRoom(chatRoomID, record.RequestID, "recommendation").
		WithField("source_request_id", requestID).
		Info("Alternative recommendations created")
	s.publish(ctx, events.Event{Type: events.TypeRegenerated, ChatRoomID: chatRoomID, RequestID: record.RequestID, SourceRequestID: requestID})

	out := models.PayloadFromRecord(record)
	out.OtherReply = payload.OtherReply
	return out, nil
}

// regenerated starts a new record carrying the source's file context. The
// conversation is not carried over.
func regenerated(source *models.AnalysisRecord, now time.Time) *models.AnalysisRecord {
	src := source.Clone()
	return &models.AnalysisRecord{
		ChatRoomID:           src.ChatRoomID,
		SourceRequestID:      src.RequestID,
		FileURLs:             src.FileURLs,
		FileNames:            src.FileNames,
		PurposeUnderstanding: src.PurposeUnderstanding,
		DataOverview:         src.DataOverview,
		ConversationRecord:   []models.ConversationEntry{},
		CreatedTime:          now,
		UpdatedTime:          now,
	}
}
