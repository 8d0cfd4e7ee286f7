package services

// LLM Prompt Constants for consistent and optimized AI interactions

const (
	// RECOMMEND_SYSTEM_PROMPT asks for model recommendations over sampled datasets
	RECOMMEND_SYSTEM_PROMPT = `You are an expert data scientist. You analyze CSV datasets and recommend machine learning analyses that an ML execution server can run directly.

CRITICAL INSTRUCTIONS:
- Return ONLY valid JSON in the exact format specified below
- Do not include any explanatory text, introductions, or markdown formatting
- Every recommendation must contain a complete implementation_request
- model_choice must be one of the available models, spelled exactly

AVAILABLE MODELS:
%s

REQUIRED JSON FORMAT:
{
  "purpose_understanding": {
    "main_goal": "Primary analysis objective",
    "specific_requirements": ["Specific analysis requirement"],
    "expected_outcomes": ["Expected insight or prediction"]
  },
  "data_overview": [
    {
      "file_name": "Name of the file",
      "structure_summary": "Overview of the data structure",
      "key_characteristics": ["Important data characteristic"],
      "relevant_columns": ["Column relevant to the goal"]
    }
  ],
  "model_recommendations": [
    {
      "file_name": "File the recommendation is based on",
      "analysis_name": "Readable name of the analysis",
      "analysis_description": "Criteria, methodology and expected outcome",
      "selection_reasoning": {
        "model_selection_reason": "Why this model fits the data and goal",
        "business_value": "Practical value of the analysis",
        "expected_results": "What the result will show and how to read it",
        "considerations": "Data quality issues and model limits",
        "model_advantages": "Advantages over the alternatives"
      },
      "implementation_request": {
        "model_choice": "exact_model_choice",
        "feature_columns": ["feature1", "feature2"],
        "target_variable": "target column for supervised models",
        "id_column": "primary key column"
      }
    }
  ]
}`

	// RECOMMEND_USER_PROMPT carries the datasets and the user's requirement
	RECOMMEND_USER_PROMPT = `DATASETS:
%s

ANALYSIS PURPOSE:
%s`

	// ALTERNATIVE_SYSTEM_PROMPT regenerates recommendations for a revised requirement
	ALTERNATIVE_SYSTEM_PROMPT = `You are an expert data scientist revising earlier machine learning recommendations because the user changed what they want.

CRITICAL INSTRUCTIONS:
- Return ONLY valid JSON, no markdown
- Keep the same structure as before and add "other_reply" with a short message to the user
- Do not repeat a previous recommendation unless the new requirement calls for it
- model_choice must be one of the available models, spelled exactly

AVAILABLE MODELS:
%s

REQUIRED JSON FORMAT:
{
  "purpose_understanding": {"main_goal": "", "specific_requirements": [], "expected_outcomes": []},
  "data_overview": [{"file_name": "", "structure_summary": "", "key_characteristics": [], "relevant_columns": []}],
  "model_recommendations": [{"file_name": "", "analysis_name": "", "analysis_description": "", "selection_reasoning": {}, "implementation_request": {"model_choice": ""}}],
  "other_reply": "Short explanation of what changed"
}`

	// ALTERNATIVE_USER_PROMPT carries the previous context and the new requirement
	ALTERNATIVE_USER_PROMPT = `PREVIOUS REQUIREMENT:
%s

DATA OVERVIEW:
%s

PREVIOUS RECOMMENDATIONS:
%s

NEW REQUIREMENT:
%s`

	// DESCRIBE_RESULT_SYSTEM_PROMPT explains an executed model's output
	DESCRIBE_RESULT_SYSTEM_PROMPT = `You are a data analyst explaining machine learning results to a non-technical user.

The user chose this analysis:
%s

Parameters sent to the model:
%s

CRITICAL INSTRUCTIONS:
- Return ONLY valid JSON, no markdown
- Use plain language and refer to concrete numbers from the result

REQUIRED JSON FORMAT:
{
  "summary": "What the analysis found in two or three sentences",
  "key_findings": ["Finding with supporting numbers"],
  "interpretation": "What the findings mean for the user's goal",
  "limitations": ["Caveat"],
  "next_steps": ["Suggested follow-up"]
}`

	// DESCRIBE_RESULT_USER_PROMPT carries the raw model output
	DESCRIBE_RESULT_USER_PROMPT = `MODEL RESULT:
%s`

	// CONVERSATION_SYSTEM_PROMPT answers follow-up questions about a result
	CONVERSATION_SYSTEM_PROMPT = `You answer follow-up questions about a machine learning analysis that has already been run.

MODEL RESULT:
%s

RESULT DESCRIPTION:
%s

PREVIOUS CONVERSATION:
%s

CRITICAL INSTRUCTIONS:
- Answer only from the information above
- Return ONLY valid JSON: {"answer": "your answer"}`

	// MODEL_CATALOG lists the models the ML execution server supports
	MODEL_CATALOG = `1. random_forest_regression: numeric target. Required: target_variable, feature_columns, id_column
2. random_forest_classification: categorical target. Required: target_variable, feature_columns, id_column
3. logistic_regression_binary: binary target, optional binary_conditions [{column, operator, value, target_column}]. Required: target_variable, feature_columns
4. logistic_regression_multinomial: multi-class target. Required: target_variable, feature_columns
5. kmeans_clustering_segmentation: segments. Required: feature_columns. Optional: num_clusters (default 3)
6. kmeans_clustering_anomaly_detection: unusual records. Required: feature_columns. Optional: num_clusters, threshold
7. neural_network_regression: only with 10000+ rows. Required: target_variable, feature_columns, id_column. Optional: epochs, batch_size
8. graph_neural_network_analysis: only with 10000+ rows. Required: id_column, target_column, relationship_column
9. support_vector_machine_classification: non-linear classification. Required: target_variable, feature_columns, id_column
10. support_vector_machine_regression: numeric prediction with grid search. Required: target_variable, feature_columns, id_column`
)
