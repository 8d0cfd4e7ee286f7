package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONFromResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{name: "bare object", response: `{"a": 1}`, want: `{"a": 1}`},
		{name: "json fence", response: "```json\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "plain fence", response: "```\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "surrounding prose", response: "Here you go: {\"a\": {\"b\": 2}} hope it helps", want: `{"a": {"b": 2}}`},
		{name: "no object", response: "I cannot answer that", wantErr: true},
		{name: "reversed braces", response: "} nope {", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSONFromResponse(tt.response)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeLLMJSON(t *testing.T) {
	var out struct {
		Summary string `json:"summary"`
	}
	require.NoError(t, decodeLLMJSON("```json\n{\"summary\": \"ok\"}\n```", &out))
	assert.Equal(t, "ok", out.Summary)

	assert.Error(t, decodeLLMJSON(`{"summary": }`, &out))
}

func TestTrackAPICallKeepsMostRecent(t *testing.T) {
	llm := NewLLMService("http://localhost:1/v1/", "", "test-model")

	for i := 0; i < maxTrackedCalls+5; i++ {
		llm.TrackAPICall("recommend", nil, 200, time.Millisecond, int64(i), "", "")
	}
	calls := llm.GetAPICalls()
	require.Len(t, calls, maxTrackedCalls)
	assert.EqualValues(t, 5, calls[0].Tokens)
	assert.EqualValues(t, maxTrackedCalls+4, calls[len(calls)-1].Tokens)

	llm.ClearAPICalls()
	assert.Empty(t, llm.GetAPICalls())
}

func TestLLMStatus(t *testing.T) {
	llm := NewLLMService("http://llm.internal/v1/", "", "")
	st := llm.Status()
	assert.Equal(t, "gpt-4o", st.Model)
	assert.False(t, st.Configured)
	assert.Nil(t, st.LastCallAt)

	llm.TrackAPICall("conversation", nil, 200, time.Millisecond, 10, "hi", "")
	llm.TrackAPICall("conversation", nil, 500, time.Millisecond, 0, "", "boom")
	st = llm.Status()
	assert.Equal(t, 2, st.TrackedCalls)
	assert.Equal(t, 1, st.FailedCalls)
	assert.NotNil(t, st.LastCallAt)
}

func newFakeCompletionServer(t *testing.T, status int, body string) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var received []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		received = append(received, req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &received
}

func TestCompleteReturnsContentAndTokens(t *testing.T) {
	srv, received := newFakeCompletionServer(t, http.StatusOK, `{
	  "id": "chatcmpl-1",
	  "object": "chat.completion",
	  "created": 1714550400,
	  "model": "test-model",
	  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{\"answer\": \"yes\"}"}}],
	  "usage": {"prompt_tokens": 30, "completion_tokens": 12, "total_tokens": 42}
	}`)

	llm := NewLLMService(srv.URL+"/v1/", "sk-test", "test-model")
	out, err := llm.Complete(context.Background(), "conversation", "system text", "user text")
	require.NoError(t, err)
	assert.Equal(t, `{"answer": "yes"}`, out.Content)
	assert.EqualValues(t, 42, out.Tokens)

	require.Len(t, *received, 1)
	assert.Equal(t, "test-model", (*received)[0]["model"])
	msgs, ok := (*received)[0]["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)

	calls := llm.GetAPICalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "conversation", calls[0].CallType)
	assert.Equal(t, 200, calls[0].Status)
	assert.EqualValues(t, 42, calls[0].Tokens)
	assert.True(t, llm.Status().Configured)
}

func TestCompleteTracksProviderErrors(t *testing.T) {
	srv, _ := newFakeCompletionServer(t, http.StatusBadRequest,
		`{"error": {"message": "context length exceeded", "type": "invalid_request_error"}}`)

	llm := NewLLMService(srv.URL+"/v1/", "sk-test", "test-model")
	_, err := llm.Complete(context.Background(), "recommend", "s", "u")
	require.Error(t, err)

	calls := llm.GetAPICalls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.StatusBadRequest, calls[0].Status)
	assert.NotEmpty(t, calls[0].Error)
	assert.Equal(t, 1, llm.Status().FailedCalls)
}
