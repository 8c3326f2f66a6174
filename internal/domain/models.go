package domain

import (
	"time"
)

// Core Enums and Types

// BiomarkerStatus represents the clinical status of a measured biomarker
type BiomarkerStatus string

const (
	STATUS_NORMAL    BiomarkerStatus = "normal"
	STATUS_ATTENTION BiomarkerStatus = "attention"
	STATUS_CRITICAL  BiomarkerStatus = "critical"
)

// UrgencyLevel represents the triage urgency assigned by Layer 1
type UrgencyLevel string

const (
	URGENCY_ROUTINE  UrgencyLevel = "routine"
	URGENCY_HIGH     UrgencyLevel = "high"
	URGENCY_CRITICAL UrgencyLevel = "critical"
)

// ConsensusLevel describes how closely the two independent models agree on a diagnosis
type ConsensusLevel string

const (
	CONSENSUS_STRONG    ConsensusLevel = "strong"
	CONSENSUS_MODERATE  ConsensusLevel = "moderate"
	CONSENSUS_WEAK      ConsensusLevel = "weak"
	CONSENSUS_SINGLE    ConsensusLevel = "single"
	CONSENSUS_DIVERGENT ConsensusLevel = "divergent"
)

// String returns the string representation of a consensus level
func (c ConsensusLevel) String() string {
	return string(c)
}

// Input Models

// Range represents a numeric reference interval for a biomarker
type Range struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Biomarker represents a single laboratory measurement with its interpretation.
// Biomarkers are produced upstream (extraction is out of scope) and consumed
// read-only by the pipeline.
type Biomarker struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Value           float64         `json:"value"`
	Unit            string          `json:"unit"`
	LabRange        Range           `json:"lab_range"`
	FunctionalRange Range           `json:"functional_range"`
	Status          BiomarkerStatus `json:"status"`
	Interpretation  string          `json:"interpretation,omitempty"`
}

// PatientContext represents the clinical context accompanying the lab panel
type PatientContext struct {
	Age             int      `json:"age"`
	Sex             string   `json:"sex"`
	ChiefComplaint  string   `json:"chief_complaint,omitempty"`
	RelevantHistory []string `json:"relevant_history,omitempty"`
	SOAPNotes       string   `json:"soap_notes,omitempty"`
}

// AnalysisInput represents the full input to a pipeline invocation
type AnalysisInput struct {
	Biomarkers        []Biomarker    `json:"biomarkers"`
	Patient           PatientContext `json:"patient"`
	DetectedSpecialty string         `json:"detected_specialty"`
}

// Layer Outputs

// TriageResult represents the urgency assessment produced by Layer 1
type TriageResult struct {
	Urgency             UrgencyLevel `json:"urgency"`
	RedFlags            []string     `json:"red_flags"`
	RecommendedWorkflow string       `json:"recommended_workflow"`
	Confidence          int          `json:"confidence"`
}

// SpecialtyFinding represents the specialty investigation produced by Layer 2
type SpecialtyFinding struct {
	ChainOfThought    []string               `json:"chain_of_thought"`
	SpecialtyFindings map[string]interface{} `json:"specialty_findings"`
}

// ModelDiagnosis represents a single ranked diagnosis as reported by one
// contributing model. It exists only during aggregation.
type ModelDiagnosis struct {
	Name                  string   `json:"name"`
	Rank                  int      `json:"rank"`
	Confidence            int      `json:"confidence"`
	ICD10                 string   `json:"icd10,omitempty"`
	SupportingEvidence    []string `json:"supporting_evidence,omitempty"`
	ContradictingEvidence []string `json:"contradicting_evidence,omitempty"`
	SuggestedTests        []string `json:"suggested_tests,omitempty"`
	Reasoning             string   `json:"reasoning,omitempty"`
}

// Correlation represents a cross-marker pattern surfaced by the fusion layer
type Correlation struct {
	Markers              []string `json:"markers"`
	Pattern              string   `json:"pattern"`
	ClinicalSignificance string   `json:"clinical_significance,omitempty"`
}

// Consensus Output Models

// ModelContribution records how one model ranked a diagnosis
type ModelContribution struct {
	Rank       int    `json:"rank"`
	Confidence int    `json:"confidence"`
	Reasoning  string `json:"reasoning,omitempty"`
}

// ModelDetails holds the per-model contributions behind a consensus diagnosis
type ModelDetails struct {
	ModelA *ModelContribution `json:"model_a,omitempty"`
	ModelB *ModelContribution `json:"model_b,omitempty"`
}

// DifferentialDiagnosis represents a single entry of a differential diagnosis
type DifferentialDiagnosis struct {
	Name                  string   `json:"name"`
	ICD10                 string   `json:"icd10,omitempty"`
	Confidence            int      `json:"confidence"`
	SupportingEvidence    []string `json:"supporting_evidence,omitempty"`
	ContradictingEvidence []string `json:"contradicting_evidence,omitempty"`
	SuggestedTests        []string `json:"suggested_tests,omitempty"`
	Reasoning             string   `json:"reasoning,omitempty"`
}

// ConsensusDiagnosis extends a differential diagnosis with the reconciled
// multi-model consensus attributes
type ConsensusDiagnosis struct {
	DifferentialDiagnosis

	AggregateScore float64        `json:"aggregate_score"`
	ConsensusLevel ConsensusLevel `json:"consensus_level"`
	ModelDetails   ModelDetails   `json:"model_details"`
}

// ConsensusMetrics summarizes the agreement between the contributing models
type ConsensusMetrics struct {
	ModelsUsed             []string         `json:"models_used"`
	StrongConsensusRate    int              `json:"strong_consensus_rate"`
	ModerateConsensusCount int              `json:"moderate_consensus_count"`
	DivergentCount         int              `json:"divergent_count"`
	DivergentDiagnoses     []string         `json:"divergent_diagnoses,omitempty"`
	TotalProcessingTimeMs  int64            `json:"total_processing_time_ms"`
	ModelTimings           map[string]int64 `json:"model_timings,omitempty"`
}

// LabAnalysisResult is the top-level envelope returned by the pipeline
type LabAnalysisResult struct {
	AnalysisID             string               `json:"analysis_id"`
	Triage                 TriageResult         `json:"triage"`
	Markers                []Biomarker          `json:"markers"`
	Correlations           []Correlation        `json:"correlations,omitempty"`
	Diagnoses              []ConsensusDiagnosis `json:"diagnoses"`
	InvestigativeQuestions []string             `json:"investigative_questions,omitempty"`
	SuggestedTests         []string             `json:"suggested_tests,omitempty"`
	ChainOfThought         []string             `json:"chain_of_thought,omitempty"`
	Validated              bool                 `json:"validated"`
	Explanation            string               `json:"explanation,omitempty"`
	Disclaimer             string               `json:"disclaimer"`
	Consensus              ConsensusMetrics     `json:"consensus"`
	CreatedAt              time.Time            `json:"created_at"`
}

// HasCriticalMarker reports whether any biomarker in the panel is critical
func (a *AnalysisInput) HasCriticalMarker() bool {
	for _, m := range a.Biomarkers {
		if m.Status == STATUS_CRITICAL {
			return true
		}
	}
	return false
}
