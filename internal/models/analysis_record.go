package models

import (
	"encoding/json"
	"strings"
	"time"
)

// RequiredImplementationKeys are the parameters the ML execution service always
// expects to see, even when their value is null.
var RequiredImplementationKeys = []string{"model_choice", "feature_columns", "target_variable", "id_column"}

// ImplementationRequest is the opaque parameter bag forwarded to the ML
// execution service.
type ImplementationRequest map[string]any

// ModelChoice returns the model_choice parameter, or "" when absent.
func (r ImplementationRequest) ModelChoice() string {
	if r == nil {
		return ""
	}
	s, _ := r["model_choice"].(string)
	return s
}

// WithRequiredKeys returns a copy in which every missing key is present with an
// explicit nil value.
func (r ImplementationRequest) WithRequiredKeys(keys ...string) ImplementationRequest {
	out := ImplementationRequest(CloneMap(r))
	if out == nil {
		out = ImplementationRequest{}
	}
	for _, k := range keys {
		if _, ok := out[k]; !ok {
			out[k] = nil
		}
	}
	return out
}

// StringList accepts either a JSON array of strings or a single string.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if strings.TrimSpace(one) == "" {
			*l = StringList{}
		} else {
			*l = StringList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

type PurposeUnderstanding struct {
	MainGoal             string     `json:"main_goal" bson:"main_goal"`
	SpecificRequirements StringList `json:"specific_requirements,omitempty" bson:"specific_requirements,omitempty"`
	ExpectedOutcomes     StringList `json:"expected_outcomes,omitempty" bson:"expected_outcomes,omitempty"`
}

type DataOverview struct {
	FileName           string     `json:"file_name" bson:"file_name"`
	StructureSummary   string     `json:"structure_summary" bson:"structure_summary"`
	KeyCharacteristics StringList `json:"key_characteristics,omitempty" bson:"key_characteristics,omitempty"`
	RelevantColumns    StringList `json:"relevant_columns,omitempty" bson:"relevant_columns,omitempty"`
}

// SelectionReasoning explains why the LLM recommended a model. Older responses
// carry a plain string, which lands in ModelSelectionReason.
type SelectionReasoning struct {
	ModelSelectionReason string `json:"model_selection_reason,omitempty" bson:"model_selection_reason,omitempty"`
	BusinessValue        string `json:"business_value,omitempty" bson:"business_value,omitempty"`
	ExpectedResults      string `json:"expected_results,omitempty" bson:"expected_results,omitempty"`
	Considerations       string `json:"considerations,omitempty" bson:"considerations,omitempty"`
	ModelAdvantages      string `json:"model_advantages,omitempty" bson:"model_advantages,omitempty"`
}

func (s *SelectionReasoning) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*s = SelectionReasoning{ModelSelectionReason: text}
		return nil
	}
	type plain SelectionReasoning
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = SelectionReasoning(p)
	return nil
}

type ModelRecommendation struct {
	FileName              string                `json:"file_name,omitempty" bson:"file_name,omitempty"`
	AnalysisName          string                `json:"analysis_name" bson:"analysis_name"`
	AnalysisDescription   string                `json:"analysis_description" bson:"analysis_description"`
	SelectionReasoning    SelectionReasoning    `json:"selection_reasoning" bson:"selection_reasoning"`
	ImplementationRequest ImplementationRequest `json:"implementation_request" bson:"implementation_request"`
	IsSelected            bool                  `json:"isSelected" bson:"isSelected"`
}

type ConversationEntry struct {
	Question  string    `json:"question" bson:"question"`
	Answer    string    `json:"answer" bson:"answer"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// AnalysisRecord is one version of the analysis for a chat room. Records are
// never deleted; regeneration inserts a new record with the next RequestID.
type AnalysisRecord struct {
	ChatRoomID           string                `json:"chatRoomId" bson:"chatRoomId"`
	RequestID            int                   `json:"requestId" bson:"requestId"`
	SourceRequestID      int                   `json:"sourceRequestId,omitempty" bson:"sourceRequestId,omitempty"`
	Requirement          string                `json:"requirement" bson:"requirement"`
	FileURLs             []string              `json:"fileUrls" bson:"fileUrls"`
	FileNames            []string              `json:"fileNames,omitempty" bson:"fileNames,omitempty"`
	PurposeUnderstanding *PurposeUnderstanding `json:"purposeUnderstanding,omitempty" bson:"purposeUnderstanding,omitempty"`
	DataOverview         []DataOverview        `json:"dataOverview,omitempty" bson:"dataOverview,omitempty"`
	ModelRecommendations []ModelRecommendation `json:"modelRecommendations" bson:"modelRecommendations"`
	SelectedModel        ImplementationRequest `json:"selectedModel,omitempty" bson:"selectedModel,omitempty"`
	ResultFromModel      map[string]any        `json:"resultFromModel,omitempty" bson:"resultFromModel,omitempty"`
	ResultDescription    map[string]any        `json:"resultDescription,omitempty" bson:"resultDescription,omitempty"`
	ConversationRecord   []ConversationEntry   `json:"conversationRecord" bson:"conversationRecord"`
	TokenUsage           int64                 `json:"tokenUsage" bson:"tokenUsage"`
	Cost                 float64               `json:"cost" bson:"cost"`
	CreatedTime          time.Time             `json:"createdTime" bson:"createdTime"`
	UpdatedTime          time.Time             `json:"updatedTime" bson:"updatedTime"`
}

// IsDispatched reports whether a model has already been executed for this record.
func (r *AnalysisRecord) IsDispatched() bool {
	return r.SelectedModel != nil || r.ResultFromModel != nil
}

// HasAnalysis reports whether both the model result and its description exist.
func (r *AnalysisRecord) HasAnalysis() bool {
	return r.ResultFromModel != nil && r.ResultDescription != nil
}

// SelectedIndex returns the index of the selected recommendation or -1.
func (r *AnalysisRecord) SelectedIndex() int {
	for i, m := range r.ModelRecommendations {
		if m.IsSelected {
			return i
		}
	}
	return -1
}

// FileURLFor returns the stored URL for fileName, falling back to the first file.
func (r *AnalysisRecord) FileURLFor(fileName string) string {
	if len(r.FileURLs) == 0 {
		return ""
	}
	if fileName != "" {
		for i, name := range r.FileNames {
			if i < len(r.FileURLs) && strings.EqualFold(name, fileName) {
				return r.FileURLs[i]
			}
		}
	}
	return r.FileURLs[0]
}

// Clone returns a deep copy so callers can mutate it without aliasing.
func (r *AnalysisRecord) Clone() *AnalysisRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.FileURLs = append([]string(nil), r.FileURLs...)
	out.FileNames = append([]string(nil), r.FileNames...)
	if r.PurposeUnderstanding != nil {
		pu := *r.PurposeUnderstanding
		pu.SpecificRequirements = append(StringList(nil), r.PurposeUnderstanding.SpecificRequirements...)
		pu.ExpectedOutcomes = append(StringList(nil), r.PurposeUnderstanding.ExpectedOutcomes...)
		out.PurposeUnderstanding = &pu
	}
	if r.DataOverview != nil {
		out.DataOverview = make([]DataOverview, len(r.DataOverview))
		for i, d := range r.DataOverview {
			d.KeyCharacteristics = append(StringList(nil), d.KeyCharacteristics...)
			d.RelevantColumns = append(StringList(nil), d.RelevantColumns...)
			out.DataOverview[i] = d
		}
	}
	out.ModelRecommendations = CloneRecommendations(r.ModelRecommendations)
	out.SelectedModel = ImplementationRequest(CloneMap(r.SelectedModel))
	out.ResultFromModel = CloneMap(r.ResultFromModel)
	out.ResultDescription = CloneMap(r.ResultDescription)
	if r.ConversationRecord != nil {
		out.ConversationRecord = append(make([]ConversationEntry, 0, len(r.ConversationRecord)), r.ConversationRecord...)
	}
	return &out
}

// CloneRecommendations deep-copies a recommendation list.
func CloneRecommendations(in []ModelRecommendation) []ModelRecommendation {
	if in == nil {
		return nil
	}
	out := make([]ModelRecommendation, len(in))
	for i, m := range in {
		m.ImplementationRequest = ImplementationRequest(CloneMap(m.ImplementationRequest))
		out[i] = m
	}
	return out
}

// RecommendationPayload is both the LLM's recommendation document and the
// response returned to clients once a RequestID is assigned.
type RecommendationPayload struct {
	RequestID            int                   `json:"requestId"`
	PurposeUnderstanding *PurposeUnderstanding `json:"purpose_understanding,omitempty"`
	DataOverview         []DataOverview        `json:"data_overview,omitempty"`
	ModelRecommendations []ModelRecommendation `json:"model_recommendations"`
	OtherReply           string                `json:"other_reply,omitempty"`
}

// PayloadFromRecord projects a stored record into the client payload.
func PayloadFromRecord(r *AnalysisRecord) *RecommendationPayload {
	return &RecommendationPayload{
		RequestID:            r.RequestID,
		PurposeUnderstanding: r.PurposeUnderstanding,
		DataOverview:         r.DataOverview,
		ModelRecommendations: r.ModelRecommendations,
	}
}

// CloneMap deep-copies nested maps and slices of a decoded JSON value.
func CloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case ImplementationRequest:
		return ImplementationRequest(CloneMap(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
