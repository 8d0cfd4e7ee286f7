package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wada/backend/internal/events"
	"github.com/wada/backend/internal/models"
	"github.com/wada/backend/internal/repository"
)

const employeesCSV = "EmployeeID,Age,Salary,Terminated\n1,34,52000,0\n2,45,61000,1\n3,29,,0\n4,52,75000,1\n"

const recommendationJSON = "```json\n" + `{
  "purpose_understanding": {"main_goal": "Predict which employees leave", "specific_requirements": ["use age and salary"], "expected_outcomes": "termination probability"},
  "data_overview": [{"file_name": "employees.csv", "structure_summary": "four columns", "key_characteristics": "small sample", "relevant_columns": ["Age", "Salary", "Terminated"]}],
  "model_recommendations": [
    {
      "file_name": "employees.csv",
      "analysis_name": "Termination Classifier",
      "analysis_description": "Classifies Terminated from Age and Salary",
      "selection_reasoning": "categorical target",
      "implementation_request": {"model_choice": "random_forest_classification", "feature_columns": ["Age", "Salary"], "target_variable": "Terminated"},
      "isSelected": true
    },
    {
      "file_name": "employees.csv",
      "analysis_name": "Salary Regression",
      "analysis_description": "Predicts Salary from Age",
      "selection_reasoning": {"model_selection_reason": "numeric target", "business_value": "pay planning"},
      "implementation_request": {"model_choice": "random_forest_regression", "feature_columns": ["Age"], "target_variable": "Salary", "id_column": "EmployeeID"}
    },
    {
      "file_name": "employees.csv",
      "analysis_name": "Employee Segments",
      "analysis_description": "Groups employees",
      "selection_reasoning": {"model_selection_reason": "no target"},
      "implementation_request": {"model_choice": "kmeans_clustering_segmentation", "feature_columns": ["Age", "Salary"], "num_clusters": 3}
    }
  ]
}` + "\n```"

// fakeLLM replays queued responses per call type.
type fakeLLM struct {
	mu        sync.Mutex
	responses map[string][]string
	failures  map[string]error
	tokens    int64
	calls     []string
	prompts   []string
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{responses: map[string][]string{}, failures: map[string]error{}, tokens: 1000}
}

func (f *fakeLLM) on(callType string, contents ...string) *fakeLLM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[callType] = append(f.responses[callType], contents...)
	return f
}

func (f *fakeLLM) fail(callType string, err error) *fakeLLM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[callType] = err
	return f
}

func (f *fakeLLM) Complete(_ context.Context, callType, system, user string) (*Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, callType)
	f.prompts = append(f.prompts, system+"\n"+user)
	if err := f.failures[callType]; err != nil {
		return nil, err
	}
	queue := f.responses[callType]
	if len(queue) == 0 {
		return nil, fmt.Errorf("unexpected %s call", callType)
	}
	f.responses[callType] = queue[1:]
	return &Completion{Content: queue[0], Tokens: f.tokens}, nil
}

func (f *fakeLLM) callCount(callType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == callType {
			n++
		}
	}
	return n
}

// fakeML records executions and returns a canned result.
type fakeML struct {
	mu       sync.Mutex
	result   map[string]any
	err      error
	fileURLs []string
	requests []models.ImplementationRequest
}

func (f *fakeML) Execute(_ context.Context, fileURL string, req models.ImplementationRequest) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fileURLs = append(f.fileURLs, fileURL)
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return models.CloneMap(f.result), nil
}

// memoryFiles is a FileStore keeping uploads in memory.
type memoryFiles struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    map[string]bool
}

func newMemoryFiles() *memoryFiles {
	return &memoryFiles{objects: map[string][]byte{}, fail: map[string]bool{}}
}

func (m *memoryFiles) Put(_ context.Context, key string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for suffix := range m.fail {
		if bytes.HasSuffix([]byte(key), []byte(suffix)) {
			return "", fmt.Errorf("write refused for %s", key)
		}
	}
	m.objects[key] = buf.Bytes()
	return "mem://" + key, nil
}

// fakeIdentity is an in-memory IdentityStore.
type fakeIdentity struct {
	mu     sync.Mutex
	guests map[string]*models.Guest
	rooms  map[string]*models.ChatRoom
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{guests: map[string]*models.Guest{}, rooms: map[string]*models.ChatRoom{}}
}

func (f *fakeIdentity) GetOrCreateGuest(_ context.Context, sessionID string) (*models.Guest, error) {
	if sessionID == "" {
		return nil, repository.ErrInvalidID
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.guests[sessionID]
	if !ok {
		g = &models.Guest{ID: sessionID, CreatedAt: time.Now()}
		f.guests[sessionID] = g
	}
	return g, nil
}

func (f *fakeIdentity) GetOrCreateChatRoom(_ context.Context, guestID, chatRoomID string) (*models.ChatRoom, error) {
	if chatRoomID == "" {
		return nil, repository.ErrInvalidID
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[chatRoomID]
	if !ok {
		r = &models.ChatRoom{ID: chatRoomID, GuestID: guestID, CreatedAt: time.Now()}
		f.rooms[chatRoomID] = r
		f.guests[guestID].ChatRooms = append(f.guests[guestID].ChatRooms, *r)
	}
	if r.GuestID != guestID {
		return nil, repository.ErrForeignChatRoom
	}
	return r, nil
}

func (f *fakeIdentity) FindGuestWithChatRooms(_ context.Context, sessionID string) (*models.Guest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.guests[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return g, nil
}

func (f *fakeIdentity) FindChatRoom(_ context.Context, chatRoomID string) (*models.ChatRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[chatRoomID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r, nil
}

type testEnv struct {
	deps      *Deps
	llm       *fakeLLM
	ml        *fakeML
	files     *memoryFiles
	identity  *fakeIdentity
	records   *repository.MemoryRecordStore
	publisher *events.RecordingPublisher

	recommend *RecommendationService
	dispatch  *DispatchService
	converse  *ConversationService
	history   *HistoryService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		llm:       newFakeLLM(),
		ml:        &fakeML{result: map[string]any{"accuracy": 0.87, "feature_importance": map[string]any{"Age": 0.4, "Salary": 0.6}}},
		files:     newMemoryFiles(),
		identity:  newFakeIdentity(),
		records:   repository.NewMemoryRecordStore(),
		publisher: &events.RecordingPublisher{},
	}
	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	env.deps = &Deps{
		Identity:        env.identity,
		Records:         env.records,
		Ingestor:        NewIngestionServiceWithSeed(env.files, 20, 2, 42),
		LLM:             env.llm,
		ML:              env.ml,
		Publisher:       env.publisher,
		CostPer1KTokens: 0.01,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	}
	env.recommend = NewRecommendationService(env.deps)
	env.dispatch = NewDispatchService(env.deps)
	env.converse = NewConversationService(env.deps)
	env.history = NewHistoryService(env.identity, env.records)
	return env
}

// seedRecommendation runs Recommend once for chatRoomID and returns its requestId.
func (e *testEnv) seedRecommendation(t *testing.T, chatRoomID string) int {
	t.Helper()
	e.llm.on("recommend", recommendationJSON)
	payload, err := e.recommend.Recommend(context.Background(), RecommendInput{
		SessionID:   "session-1",
		ChatRoomID:  chatRoomID,
		Requirement: "Predict which employees will be terminated from Age and Salary",
		Files:       []UploadedFile{{Name: "employees.csv", Content: []byte(employeesCSV)}},
	})
	require.NoError(t, err)
	return payload.RequestID
}

// seedDispatched seeds a record and dispatches its first recommendation.
func (e *testEnv) seedDispatched(t *testing.T, chatRoomID string) int {
	t.Helper()
	id := e.seedRecommendation(t, chatRoomID)
	e.llm.on("describe_result", `{"summary": "Salary drives terminations", "key_findings": ["accuracy 0.87"]}`)
	_, err := e.dispatch.Dispatch(context.Background(), chatRoomID, id, SelectByIndex(0))
	require.NoError(t, err)
	return id
}

func (e *testEnv) record(t *testing.T, chatRoomID string, requestID int) *models.AnalysisRecord {
	t.Helper()
	r, err := e.records.FindOne(context.Background(), chatRoomID, requestID)
	require.NoError(t, err)
	return r
}
