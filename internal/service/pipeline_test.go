package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labinsight-engine/internal/domain"
	"github.com/labinsight-engine/pkg/llm"
)

// scriptedClient routes invocations to per-layer handlers so each test can
// script any combination of layer successes and failures
type scriptedClient struct {
	triage     func(model string) (string, error)
	specialty  func(model string) (string, error)
	fusion     func(model string) (string, error)
	validation func(model string) (string, error)
}

func (s *scriptedClient) Invoke(ctx context.Context, model, systemPrompt, userPrompt string, opts llm.CallOptions) (string, error) {
	switch {
	case strings.Contains(systemPrompt, "triage assistant"):
		return s.triage(model)
	case strings.Contains(systemPrompt, "specialist performing"):
		return s.specialty(model)
	case strings.Contains(systemPrompt, "diagnostician"):
		return s.fusion(model)
	case strings.Contains(systemPrompt, "quality reviewer"):
		return s.validation(model)
	}
	return "", domain.NewModelCallError(model, "unexpected system prompt", nil)
}

func respond(text string) func(string) (string, error) {
	return func(string) (string, error) { return text, nil }
}

func fail(message string) func(string) (string, error) {
	return func(model string) (string, error) {
		return "", domain.NewModelCallError(model, message, nil)
	}
}

const (
	triageReply = `{"urgency": "high", "red_flags": ["HbA1c above 8%"], "recommended_workflow": "specialist", "confidence": 85}`

	specialtyReply = `{"chain_of_thought": ["HbA1c elevated", "fasting glucose elevated"], "findings": {"glycemic_control": "poor"}}`

	primaryFusionReply = `{
		"diagnoses": [
			{"name": "Type 2 Diabetes Mellitus", "rank": 1, "confidence": 85, "icd10": "E11.9", "suggested_tests": ["OGTT"], "reasoning": "glycemic markers"},
			{"name": "Hypothyroidism", "rank": 2, "confidence": 55}
		],
		"correlations": [{"markers": ["HbA1c", "Glucose"], "pattern": "concordant elevation"}],
		"investigative_questions": ["Any family history of diabetes?"]
	}`

	challengerFusionReply = `{
		"diagnoses": [
			{"name": "T2DM", "rank": 1, "confidence": 90, "suggested_tests": ["ogtt", "fasting insulin"]},
			{"name": "Metabolic Syndrome", "rank": 2, "confidence": 50}
		]
	}`

	validationReply = `{"validated": true, "explanation": "Diagnoses consistent with the panel."}`
)

func testConfig() *domain.Config {
	return &domain.Config{
		Models: domain.ModelsConfig{
			Primary:    domain.ModelConfig{ID: "gpt-4o", Provider: "openai"},
			Challenger: domain.ModelConfig{ID: "gemini-2.0-flash", Provider: "gemini"},
		},
		Pipeline: domain.PipelineConfig{
			TriageTemperature:  0.1,
			FusionTemperature:  0.2,
			FallbackConfidence: 30,
		},
		Consensus: DefaultConsensusConfig(),
	}
}

func testInput() *domain.AnalysisInput {
	return &domain.AnalysisInput{
		Biomarkers: []domain.Biomarker{
			{ID: "hba1c", Name: "HbA1c", Value: 8.2, Unit: "%",
				LabRange: domain.Range{Low: 4.0, High: 5.6}, Status: domain.STATUS_ATTENTION},
			{ID: "glucose", Name: "Fasting Glucose", Value: 152, Unit: "mg/dL",
				LabRange: domain.Range{Low: 70, High: 99}, Status: domain.STATUS_ATTENTION},
		},
		Patient:           domain.PatientContext{Age: 52, Sex: "male", ChiefComplaint: "fatigue"},
		DetectedSpecialty: "endocrinology",
	}
}

func happyClient() *scriptedClient {
	return &scriptedClient{
		triage:    respond(triageReply),
		specialty: respond(specialtyReply),
		fusion: func(model string) (string, error) {
			if model == "gpt-4o" {
				return primaryFusionReply, nil
			}
			return challengerFusionReply, nil
		},
		validation: respond(validationReply),
	}
}

func TestAnalyze_FullPipeline(t *testing.T) {
	svc := NewAnalysisService(testConfig(), happyClient(), testLogger())

	result, err := svc.Analyze(context.Background(), testInput())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.NotEmpty(t, result.AnalysisID)
	assert.Equal(t, domain.URGENCY_HIGH, result.Triage.Urgency)
	assert.Equal(t, 85, result.Triage.Confidence)

	require.NotEmpty(t, result.Diagnoses)
	top := result.Diagnoses[0]
	assert.Equal(t, "Type 2 Diabetes Mellitus", top.Name)
	assert.Equal(t, domain.CONSENSUS_STRONG, top.ConsensusLevel)
	assert.InDelta(t, 2.0, top.AggregateScore, 1e-9)

	assert.Equal(t, []string{"HbA1c elevated", "fasting glucose elevated"}, result.ChainOfThought)
	assert.Len(t, result.Correlations, 1)
	assert.Equal(t, []string{"Any family history of diabetes?"}, result.InvestigativeQuestions)
	// Union of kept diagnoses' tests, deduplicated case-insensitively.
	assert.Equal(t, []string{"OGTT", "fasting insulin"}, result.SuggestedTests)

	assert.True(t, result.Validated)
	assert.Equal(t, "Diagnoses consistent with the panel.", result.Explanation)
	assert.Equal(t, Disclaimer, result.Disclaimer)

	assert.Equal(t, []string{"gpt-4o", "gemini-2.0-flash"}, result.Consensus.ModelsUsed)
	assert.False(t, result.CreatedAt.IsZero())
}

func TestAnalyze_EmptyInput(t *testing.T) {
	svc := NewAnalysisService(testConfig(), happyClient(), testLogger())

	tests := []struct {
		name  string
		input *domain.AnalysisInput
	}{
		{name: "nil input", input: nil},
		{name: "no biomarkers", input: &domain.AnalysisInput{Patient: domain.PatientContext{Age: 40}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.Analyze(context.Background(), tt.input)
			assert.Nil(t, result)
			var pipeErr *domain.PipelineError
			require.ErrorAs(t, err, &pipeErr)
			assert.Equal(t, domain.ErrInvalidInput, pipeErr.Code)
		})
	}
}

func TestAnalyze_TriageFailureFallsBack(t *testing.T) {
	client := happyClient()
	client.triage = fail("provider down")
	svc := NewAnalysisService(testConfig(), client, testLogger())

	input := testInput()
	input.Biomarkers[0].Status = domain.STATUS_CRITICAL

	result, err := svc.Analyze(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, domain.URGENCY_CRITICAL, result.Triage.Urgency)
	assert.Equal(t, "emergency", result.Triage.RecommendedWorkflow)
	assert.Equal(t, 30, result.Triage.Confidence)
	require.Len(t, result.Triage.RedFlags, 1)
	assert.Contains(t, result.Triage.RedFlags[0], "HbA1c")
}

func TestAnalyze_TriageFallbackRoutineWithoutCriticalMarkers(t *testing.T) {
	client := happyClient()
	client.triage = respond("I cannot answer in JSON, sorry.")
	svc := NewAnalysisService(testConfig(), client, testLogger())

	result, err := svc.Analyze(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, domain.URGENCY_ROUTINE, result.Triage.Urgency)
	assert.Equal(t, "primary", result.Triage.RecommendedWorkflow)
	assert.Equal(t, 30, result.Triage.Confidence)
	assert.Empty(t, result.Triage.RedFlags)
}

func TestAnalyze_SpecialtyFailureContinues(t *testing.T) {
	client := happyClient()
	client.specialty = fail("timeout")
	svc := NewAnalysisService(testConfig(), client, testLogger())

	result, err := svc.Analyze(context.Background(), testInput())
	require.NoError(t, err)

	assert.Empty(t, result.ChainOfThought)
	assert.NotEmpty(t, result.Diagnoses)
}

func TestAnalyze_ChallengerFailureDegradesToSingleModel(t *testing.T) {
	client := happyClient()
	client.fusion = func(model string) (string, error) {
		if model == "gpt-4o" {
			return primaryFusionReply, nil
		}
		return "", domain.NewModelCallError(model, "provider unavailable", nil)
	}
	svc := NewAnalysisService(testConfig(), client, testLogger())

	result, err := svc.Analyze(context.Background(), testInput())
	require.NoError(t, err)

	require.NotEmpty(t, result.Diagnoses)
	for _, d := range result.Diagnoses {
		assert.Equal(t, domain.CONSENSUS_SINGLE, d.ConsensusLevel)
	}
	assert.Equal(t, []string{"gpt-4o"}, result.Consensus.ModelsUsed)
}

func TestAnalyze_PrimaryFusionFailureUsesChallenger(t *testing.T) {
	client := happyClient()
	client.fusion = func(model string) (string, error) {
		if model == "gpt-4o" {
			return "", domain.NewModelCallError(model, "provider unavailable", nil)
		}
		return challengerFusionReply, nil
	}
	svc := NewAnalysisService(testConfig(), client, testLogger())

	result, err := svc.Analyze(context.Background(), testInput())
	require.NoError(t, err)

	require.NotEmpty(t, result.Diagnoses)
	assert.Equal(t, "T2DM", result.Diagnoses[0].Name)
	assert.Equal(t, []string{"gemini-2.0-flash"}, result.Consensus.ModelsUsed)
	// Correlations come from the surviving model, which produced none.
	assert.Empty(t, result.Correlations)
}

func TestAnalyze_BothFusionModelsFail(t *testing.T) {
	client := happyClient()
	client.fusion = fail("provider unavailable")
	svc := NewAnalysisService(testConfig(), client, testLogger())

	result, err := svc.Analyze(context.Background(), testInput())
	assert.Nil(t, result)

	var pipeErr *domain.PipelineError
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, domain.ErrPipelineFailed, pipeErr.Code)
	assert.Len(t, pipeErr.Causes, 2)
}

func TestAnalyze_EmptyDiagnosesCountsAsUnusable(t *testing.T) {
	client := happyClient()
	client.fusion = respond(`{"diagnoses": []}`)
	svc := NewAnalysisService(testConfig(), client, testLogger())

	result, err := svc.Analyze(context.Background(), testInput())
	assert.Nil(t, result)

	var pipeErr *domain.PipelineError
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, domain.ErrPipelineFailed, pipeErr.Code)
}

func TestAnalyze_ValidationFailureDefaultsToValidated(t *testing.T) {
	client := happyClient()
	client.validation = fail("quota exceeded")
	svc := NewAnalysisService(testConfig(), client, testLogger())

	result, err := svc.Analyze(context.Background(), testInput())
	require.NoError(t, err)

	assert.True(t, result.Validated)
	assert.Empty(t, result.Explanation)
}

func TestAnalyze_SingleModelConfiguration(t *testing.T) {
	cfg := testConfig()
	cfg.Models.Challenger = domain.ModelConfig{}
	svc := NewAnalysisService(cfg, happyClient(), testLogger())

	result, err := svc.Analyze(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, []string{"gpt-4o"}, result.Consensus.ModelsUsed)
	for _, d := range result.Diagnoses {
		assert.Equal(t, domain.CONSENSUS_SINGLE, d.ConsensusLevel)
	}
}

func TestAnalyze_UnknownTriageUrgencyFallsBack(t *testing.T) {
	client := happyClient()
	client.triage = respond(`{"urgency": "catastrophic", "confidence": 90}`)
	svc := NewAnalysisService(testConfig(), client, testLogger())

	result, err := svc.Analyze(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, domain.URGENCY_ROUTINE, result.Triage.Urgency)
	assert.Equal(t, 30, result.Triage.Confidence)
}
