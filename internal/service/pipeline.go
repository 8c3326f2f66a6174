package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/labinsight-engine/internal/domain"
	"github.com/labinsight-engine/internal/parser"
	"github.com/labinsight-engine/pkg/llm"
)

// Disclaimer is attached to every result, degraded or not.
const Disclaimer = "This analysis was generated by an AI system and is not a medical diagnosis. " +
	"All findings must be reviewed by a licensed healthcare professional before any clinical decision."

// AnalysisService runs the four-layer clinical reasoning pipeline:
// triage, specialty investigation, dual-model fusion with consensus
// reconciliation, and advisory explainability. Each invocation is stateless,
// so a single service handles unbounded concurrent analyses.
type AnalysisService struct {
	logger     *logrus.Logger
	models     llm.ModelClient
	cfg        *domain.Config
	aggregator *ConsensusAggregator
}

// NewAnalysisService creates a new analysis pipeline service
func NewAnalysisService(cfg *domain.Config, models llm.ModelClient, logger *logrus.Logger) *AnalysisService {
	return &AnalysisService{
		logger:     logger,
		models:     models,
		cfg:        cfg,
		aggregator: NewConsensusAggregator(cfg.Consensus, logger),
	}
}

// Analyze executes the pipeline strictly Layer 1 → 2 → 3 → 4 and assembles
// the result envelope. Failures in Layers 1, 2 and 4 degrade gracefully; the
// only fatal path is both Layer-3 models failing.
func (s *AnalysisService) Analyze(ctx context.Context, input *domain.AnalysisInput) (*domain.LabAnalysisResult, error) {
	startTime := time.Now()

	if input == nil || len(input.Biomarkers) == 0 {
		return nil, domain.NewPipelineError(domain.ErrInvalidInput, "at least one biomarker is required")
	}

	analysisID := uuid.New().String()
	s.logger.WithFields(logrus.Fields{
		"analysis_id": analysisID,
		"markers":     len(input.Biomarkers),
		"specialty":   input.DetectedSpecialty,
	}).Info("Starting lab analysis")

	// Layer 1: triage
	triage := s.runTriage(ctx, input)

	// Layer 2: specialty investigation
	specialty := s.runSpecialty(ctx, input, triage)

	// Layer 3: dual-model fusion and consensus
	fusion, err := s.runFusion(ctx, input, triage, specialty)
	if err != nil {
		return nil, err
	}

	result := &domain.LabAnalysisResult{
		AnalysisID:             analysisID,
		Triage:                 triage,
		Markers:                input.Biomarkers,
		Correlations:           fusion.correlations,
		Diagnoses:              fusion.diagnoses,
		InvestigativeQuestions: fusion.questions,
		SuggestedTests:         collectSuggestedTests(fusion.diagnoses),
		ChainOfThought:         specialty.ChainOfThought,
		Disclaimer:             Disclaimer,
		Consensus:              fusion.metrics,
		CreatedAt:              time.Now().UTC(),
	}

	// Layer 4: advisory explainability; never blocks delivery
	validated, explanation := s.runValidation(ctx, input, result)
	result.Validated = validated
	result.Explanation = explanation

	result.Consensus.TotalProcessingTimeMs = time.Since(startTime).Milliseconds()

	s.logger.WithFields(logrus.Fields{
		"analysis_id":   analysisID,
		"diagnoses":     len(result.Diagnoses),
		"urgency":       result.Triage.Urgency,
		"models_used":   result.Consensus.ModelsUsed,
		"total_time_ms": result.Consensus.TotalProcessingTimeMs,
	}).Info("Lab analysis completed")

	return result, nil
}

// runTriage executes Layer 1. A failed call or unparseable reply falls back
// to a local heuristic with a fixed low confidence so downstream layers see
// degraded quality, not an error.
func (s *AnalysisService) runTriage(ctx context.Context, input *domain.AnalysisInput) domain.TriageResult {
	raw, err := s.models.Invoke(ctx,
		s.cfg.Models.Primary.ID,
		triageSystemPrompt,
		buildTriagePrompt(input),
		llm.CallOptions{Temperature: s.cfg.Pipeline.TriageTemperature, JSONMode: true},
	)
	if err != nil {
		s.logger.WithError(err).Warn("Triage model call failed, using heuristic fallback")
		return s.fallbackTriage(input)
	}

	var triage domain.TriageResult
	if err := parser.Decode("triage", raw, &triage); err != nil {
		s.logger.WithError(err).Warn("Triage response unparseable, using heuristic fallback")
		return s.fallbackTriage(input)
	}

	switch triage.Urgency {
	case domain.URGENCY_ROUTINE, domain.URGENCY_HIGH, domain.URGENCY_CRITICAL:
	default:
		s.logger.WithField("urgency", triage.Urgency).Warn("Triage returned unknown urgency, using heuristic fallback")
		return s.fallbackTriage(input)
	}
	if triage.Confidence < 0 {
		triage.Confidence = 0
	}
	if triage.Confidence > 100 {
		triage.Confidence = 100
	}

	return triage
}

// fallbackTriage derives urgency locally from marker statuses
func (s *AnalysisService) fallbackTriage(input *domain.AnalysisInput) domain.TriageResult {
	triage := domain.TriageResult{
		Urgency:             domain.URGENCY_ROUTINE,
		RecommendedWorkflow: "primary",
		Confidence:          s.cfg.Pipeline.FallbackConfidence,
	}

	if input.HasCriticalMarker() {
		triage.Urgency = domain.URGENCY_CRITICAL
		triage.RecommendedWorkflow = "emergency"
		for _, m := range input.Biomarkers {
			if m.Status == domain.STATUS_CRITICAL {
				triage.RedFlags = append(triage.RedFlags, fmt.Sprintf("%s critically out of range", m.Name))
			}
		}
	}

	return triage
}

// runSpecialty executes Layer 2. Failure is non-fatal: the pipeline continues
// with an empty investigation.
func (s *AnalysisService) runSpecialty(ctx context.Context, input *domain.AnalysisInput, triage domain.TriageResult) domain.SpecialtyFinding {
	empty := domain.SpecialtyFinding{
		ChainOfThought:    []string{},
		SpecialtyFindings: map[string]interface{}{},
	}

	raw, err := s.models.Invoke(ctx,
		s.cfg.Models.Primary.ID,
		fmt.Sprintf(specialtySystemPromptTemplate, input.DetectedSpecialty),
		buildSpecialtyPrompt(input, triage),
		llm.CallOptions{Temperature: s.cfg.Pipeline.SpecialtyTemperature, JSONMode: true},
	)
	if err != nil {
		s.logger.WithError(err).Warn("Specialty model call failed, continuing without findings")
		return empty
	}

	var envelope struct {
		ChainOfThought []string               `json:"chain_of_thought"`
		Findings       map[string]interface{} `json:"findings"`
	}
	if err := parser.Decode("specialty", raw, &envelope); err != nil {
		s.logger.WithError(err).Warn("Specialty response unparseable, continuing without findings")
		return empty
	}

	finding := domain.SpecialtyFinding{
		ChainOfThought:    envelope.ChainOfThought,
		SpecialtyFindings: envelope.Findings,
	}
	if finding.ChainOfThought == nil {
		finding.ChainOfThought = []string{}
	}
	if finding.SpecialtyFindings == nil {
		finding.SpecialtyFindings = map[string]interface{}{}
	}

	return finding
}

// fusionOutput is the typed payload each Layer-3 model returns
type fusionOutput struct {
	Diagnoses              []domain.ModelDiagnosis `json:"diagnoses"`
	Correlations           []domain.Correlation    `json:"correlations"`
	InvestigativeQuestions []string                `json:"investigative_questions"`
}

// modelOutcome captures one Layer-3 call after it settles: value or failure,
// never both, plus wall-clock timing
type modelOutcome struct {
	modelID   string
	output    fusionOutput
	elapsedMs int64
	err       error
}

// fusionResult is everything Layer 3 hands to envelope assembly
type fusionResult struct {
	diagnoses    []domain.ConsensusDiagnosis
	metrics      domain.ConsensusMetrics
	correlations []domain.Correlation
	questions    []string
}

// runFusion executes Layer 3: both models are invoked concurrently with the
// identical prompt, each failure is captured in its own outcome, and the
// aggregator reconciles whatever survived. Only a dual failure is fatal.
func (s *AnalysisService) runFusion(ctx context.Context, input *domain.AnalysisInput, triage domain.TriageResult, specialty domain.SpecialtyFinding) (*fusionResult, error) {
	userPrompt := buildFusionPrompt(input, triage, specialty)

	primaryCfg := s.cfg.Models.Primary
	challengerCfg := s.cfg.Models.Challenger
	challengerEnabled := challengerCfg.ID != ""

	outcomes := make(chan modelOutcome, 2)
	expected := 1

	go func() {
		outcomes <- s.invokeFusionModel(ctx, primaryCfg.ID, userPrompt)
	}()
	if challengerEnabled {
		expected = 2
		go func() {
			outcomes <- s.invokeFusionModel(ctx, challengerCfg.ID, userPrompt)
		}()
	}

	var primaryOutcome, challengerOutcome modelOutcome
	challengerOutcome.modelID = challengerCfg.ID
	for i := 0; i < expected; i++ {
		outcome := <-outcomes
		if outcome.modelID == primaryCfg.ID {
			primaryOutcome = outcome
		} else {
			challengerOutcome = outcome
		}
	}

	primaryOK := primaryOutcome.err == nil
	challengerOK := challengerEnabled && challengerOutcome.err == nil

	if !primaryOK && !challengerOK {
		causes := []error{primaryOutcome.err}
		if challengerEnabled {
			causes = append(causes, challengerOutcome.err)
		}
		return nil, domain.NewPipelineError(domain.ErrPipelineFailed,
			"no diagnostic model produced usable output", causes...)
	}
	if !primaryOK {
		s.logger.WithError(primaryOutcome.err).Warn("Primary model unusable, consensus running in single-model mode")
	}
	if challengerEnabled && !challengerOK {
		s.logger.WithError(challengerOutcome.err).Warn("Challenger model unusable, consensus running in single-model mode")
	}

	primaryRanking := ModelRanking{ModelID: primaryCfg.ID, ElapsedMs: primaryOutcome.elapsedMs}
	if primaryOK {
		primaryRanking.Diagnoses = primaryOutcome.output.Diagnoses
	}
	challengerRanking := ModelRanking{ModelID: challengerCfg.ID, ElapsedMs: challengerOutcome.elapsedMs}
	if challengerOK {
		challengerRanking.Diagnoses = challengerOutcome.output.Diagnoses
	}

	diagnoses, metrics := s.aggregator.Aggregate(primaryRanking, challengerRanking)

	result := &fusionResult{
		diagnoses: diagnoses,
		metrics:   metrics,
	}
	// Correlations and investigative questions come from the primary model
	// when it is usable, otherwise from the challenger.
	if primaryOK {
		result.correlations = primaryOutcome.output.Correlations
		result.questions = primaryOutcome.output.InvestigativeQuestions
	} else {
		result.correlations = challengerOutcome.output.Correlations
		result.questions = challengerOutcome.output.InvestigativeQuestions
	}

	return result, nil
}

// invokeFusionModel performs one Layer-3 call and settles it into an outcome.
// A reply with no diagnoses counts as unusable output.
func (s *AnalysisService) invokeFusionModel(ctx context.Context, modelID, userPrompt string) modelOutcome {
	start := time.Now()
	outcome := modelOutcome{modelID: modelID}

	raw, err := s.models.Invoke(ctx, modelID, fusionSystemPrompt, userPrompt,
		llm.CallOptions{Temperature: s.cfg.Pipeline.FusionTemperature, JSONMode: true})
	outcome.elapsedMs = time.Since(start).Milliseconds()
	if err != nil {
		outcome.err = err
		return outcome
	}

	var output fusionOutput
	if err := parser.Decode("fusion", raw, &output); err != nil {
		outcome.err = err
		return outcome
	}
	if len(output.Diagnoses) == 0 {
		outcome.err = domain.NewParseError("fusion", "model returned no diagnoses", nil)
		return outcome
	}

	outcome.output = output
	return outcome
}

// runValidation executes Layer 4. It is advisory only: any failure defaults
// to validated with an empty explanation.
func (s *AnalysisService) runValidation(ctx context.Context, input *domain.AnalysisInput, result *domain.LabAnalysisResult) (bool, string) {
	raw, err := s.models.Invoke(ctx,
		s.cfg.Models.Primary.ID,
		validationSystemPrompt,
		buildValidationPrompt(input, result),
		llm.CallOptions{Temperature: s.cfg.Pipeline.ValidationTemperature, JSONMode: true},
	)
	if err != nil {
		s.logger.WithError(err).Warn("Validation model call failed, defaulting to validated")
		return true, ""
	}

	var envelope struct {
		Validated   bool   `json:"validated"`
		Explanation string `json:"explanation"`
	}
	if err := parser.Decode("validation", raw, &envelope); err != nil {
		s.logger.WithError(err).Warn("Validation response unparseable, defaulting to validated")
		return true, ""
	}

	return envelope.Validated, envelope.Explanation
}

// collectSuggestedTests unions the suggested tests of the kept diagnoses,
// deduplicated case-insensitively with first-seen casing preserved
func collectSuggestedTests(diagnoses []domain.ConsensusDiagnosis) []string {
	seen := make(map[string]bool)
	var tests []string
	for _, d := range diagnoses {
		tests = mergeUnique(tests, seen, d.SuggestedTests)
	}
	return tests
}
