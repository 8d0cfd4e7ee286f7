package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/wada/backend/internal/logger"
	"github.com/wada/backend/internal/models"
	"github.com/wada/backend/internal/observability"
)

// MLClient executes a chosen model against a stored dataset.
type MLClient interface {
	Execute(ctx context.Context, fileURL string, req models.ImplementationRequest) (map[string]any, error)
}

// MLService calls the external ML execution server's /predict endpoint.
type MLService struct {
	baseURL string
	client  *http.Client
}

func NewMLService(baseURL string, timeout time.Duration) *MLService {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &MLService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (ms *MLService) Execute(ctx context.Context, fileURL string, req models.ImplementationRequest) (map[string]any, error) {
	modelChoice := req.ModelChoice()
	log := logger.WithML(modelChoice)
	startTime := time.Now()

	body := make(map[string]any, len(req)+1)
	for k, v := range req {
		body[k] = v
	}
	body["file_path"] = fileURL

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ms.baseURL+"/predict", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	log.WithField("file_path", fileURL).Info("Dispatching model to ML service")
	resp, err := ms.client.Do(httpReq)
	elapsed := time.Since(startTime)
	if err != nil {
		observability.MLCallDuration.WithLabelValues(modelChoice, "error").Observe(elapsed.Seconds())
		return nil, fmt.Errorf("ML request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ML response: %w", err)
	}
	observability.MLCallDuration.WithLabelValues(modelChoice, fmt.Sprint(resp.StatusCode)).Observe(elapsed.Seconds())

	if resp.StatusCode != http.StatusOK {
		log.WithField("status", resp.StatusCode).Warn("ML service returned an error")
		return nil, fmt.Errorf("ML service returned status %d, body: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	result := gjson.GetBytes(respBody, "result")
	if !result.IsObject() {
		return nil, fmt.Errorf("ML response has no result object")
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(result.Raw), &out); err != nil {
		return nil, fmt.Errorf("failed to decode ML result: %w", err)
	}
	log.WithField("duration", elapsed.String()).Info("ML service completed")
	return out, nil
}
