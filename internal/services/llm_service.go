package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/wada/backend/internal/logger"
	"github.com/wada/backend/internal/observability"
)

const maxTrackedCalls = 100

// Completion is the text returned by one chat completion and its token cost.
type Completion struct {
	Content string
	Tokens  int64
}

// LLMClient is the chat completion collaborator used by the workflows.
type LLMClient interface {
	Complete(ctx context.Context, callType, system, user string) (*Completion, error)
}

type LLMService struct {
	client    *openai.Client
	baseURL   string
	llmModel  string
	hasAPIKey bool
	apiCalls  []LLMAPICall
	callMutex sync.RWMutex
}

// LLMAPICall is one tracked request to the LLM provider.
type LLMAPICall struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Model     string                 `json:"model"`
	CallType  string                 `json:"callType"` // "recommend", "alternative", "describe_result", "conversation"
	Payload   map[string]interface{} `json:"payload"`
	Status    int                    `json:"status"`
	Duration  time.Duration          `json:"duration"`
	Tokens    int64                  `json:"tokens"`
	Response  string                 `json:"response"`
	Error     string                 `json:"error,omitempty"`
}

// LLMStatus describes the configured provider for the status endpoint.
type LLMStatus struct {
	BaseURL      string     `json:"baseUrl"`
	Model        string     `json:"model"`
	Configured   bool       `json:"configured"`
	TrackedCalls int        `json:"trackedCalls"`
	FailedCalls  int        `json:"failedCalls"`
	LastCallAt   *time.Time `json:"lastCallAt,omitempty"`
}

func NewLLMService(baseURL, apiKey, llmModel string) *LLMService {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if llmModel == "" {
		llmModel = "gpt-4o"
	}

	opts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if apiKey == "" {
		logger.Info("OPENAI_API_KEY is not set, will try unauthenticated access", nil)
	} else {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := openai.NewClient(opts...)

	return &LLMService{
		client:    &client,
		baseURL:   baseURL,
		llmModel:  llmModel,
		hasAPIKey: apiKey != "",
		apiCalls:  make([]LLMAPICall, 0),
	}
}

// GetAPICalls returns all tracked LLM API calls
func (ls *LLMService) GetAPICalls() []LLMAPICall {
	ls.callMutex.RLock()
	defer ls.callMutex.RUnlock()

	calls := make([]LLMAPICall, len(ls.apiCalls))
	copy(calls, ls.apiCalls)
	return calls
}

// ClearAPICalls clears the API call history
func (ls *LLMService) ClearAPICalls() {
	ls.callMutex.Lock()
	defer ls.callMutex.Unlock()
	ls.apiCalls = make([]LLMAPICall, 0)
}

func (ls *LLMService) addAPICall(call LLMAPICall) {
	ls.callMutex.Lock()
	defer ls.callMutex.Unlock()

	if len(ls.apiCalls) >= maxTrackedCalls {
		ls.apiCalls = ls.apiCalls[1:]
	}
	ls.apiCalls = append(ls.apiCalls, call)
}

// TrackAPICall records a finished call in the ring buffer.
func (ls *LLMService) TrackAPICall(callType string, payload map[string]interface{}, status int, duration time.Duration, tokens int64, response string, errMsg string) {
	ls.addAPICall(LLMAPICall{
		ID:        fmt.Sprintf("llm_%d", time.Now().UnixNano()),
		Timestamp: time.Now(),
		Model:     ls.llmModel,
		CallType:  callType,
		Payload:   payload,
		Status:    status,
		Duration:  duration,
		Tokens:    tokens,
		Response:  response,
		Error:     errMsg,
	})
}

// Status summarizes the provider configuration and recent call history.
func (ls *LLMService) Status() LLMStatus {
	calls := ls.GetAPICalls()
	st := LLMStatus{
		BaseURL:      ls.baseURL,
		Model:        ls.llmModel,
		Configured:   ls.hasAPIKey,
		TrackedCalls: len(calls),
	}
	for _, c := range calls {
		if c.Error != "" {
			st.FailedCalls++
		}
	}
	if len(calls) > 0 {
		last := calls[len(calls)-1].Timestamp
		st.LastCallAt = &last
	}
	return st
}

func (ls *LLMService) Model() string {
	return ls.llmModel
}

// Complete sends one system + user message pair and returns the first choice.
func (ls *LLMService) Complete(ctx context.Context, callType, system, user string) (*Completion, error) {
	log := logger.WithLLM(callType)
	startTime := time.Now()
	payload := map[string]interface{}{
		"system_length": len(system),
		"user_length":   len(user),
	}

	ctx, span := observability.StartSpan(ctx, "llm."+callType)
	defer span.End()

	log.WithField("prompt_length", len(system)+len(user)).Debug("Making LLM request")
	resp, err := ls.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model: ls.llmModel,
	})
	elapsed := time.Since(startTime)

	if err != nil {
		status := 0
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		span.RecordError(err)
		observability.LLMCallDuration.WithLabelValues(callType, "error").Observe(elapsed.Seconds())
		ls.TrackAPICall(callType, payload, status, elapsed, 0, "", err.Error())
		log.WithField("duration", elapsed.String()).WithError(err).Error("LLM request failed")
		return nil, fmt.Errorf("LLM request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		ls.TrackAPICall(callType, payload, 200, elapsed, resp.Usage.TotalTokens, "", "no choices returned")
		return nil, fmt.Errorf("client didn't return any content choices")
	}

	content := resp.Choices[0].Message.Content
	observability.LLMCallDuration.WithLabelValues(callType, "ok").Observe(elapsed.Seconds())
	observability.LLMTokens.WithLabelValues(callType).Add(float64(resp.Usage.TotalTokens))
	ls.TrackAPICall(callType, payload, 200, elapsed, resp.Usage.TotalTokens, content, "")

	log.WithField("duration", elapsed.String()).
		WithField("tokens", resp.Usage.TotalTokens).
		Info("LLM request completed")

	return &Completion{Content: content, Tokens: resp.Usage.TotalTokens}, nil
}

// extractJSONFromResponse strips markdown fences and surrounding prose,
// returning the outermost JSON object.
func extractJSONFromResponse(response string) (string, error) {
	clean := strings.TrimSpace(response)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)

	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("LLM did not return valid JSON. Raw response: %q", truncate(clean, 200))
	}
	return clean[start : end+1], nil
}

// decodeLLMJSON extracts and decodes the JSON object in an LLM response.
func decodeLLMJSON(response string, v interface{}) error {
	raw, err := extractJSONFromResponse(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
