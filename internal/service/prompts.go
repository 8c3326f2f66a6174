package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/labinsight-engine/internal/domain"
)

// System prompts for each pipeline layer. Every layer demands a bare JSON
// object so the lenient parser has a payload to find even when the model
// ignores the formatting instruction.

const triageSystemPrompt = `You are a clinical triage assistant reviewing a laboratory panel.
Assess the urgency of the findings before any diagnostic reasoning happens.
Respond with a single JSON object:
{"urgency": "routine" | "high" | "critical", "red_flags": ["..."], "recommended_workflow": "primary" | "specialist" | "emergency", "confidence": 0-100}
Do not include any text outside the JSON object.`

const specialtySystemPromptTemplate = `You are a %s specialist performing a focused investigation of a laboratory panel.
Reason step by step about the markers relevant to your specialty.
Respond with a single JSON object:
{"chain_of_thought": ["step 1", "step 2", ...], "findings": {"<topic>": "<finding>", ...}}
Do not include any text outside the JSON object.`

const fusionSystemPrompt = `You are a diagnostician producing a ranked differential diagnosis from a laboratory panel, patient context, triage assessment and specialty findings.
Rank diagnoses from most to least likely. Be specific: name conditions, not categories.
Respond with a single JSON object:
{"diagnoses": [{"name": "...", "rank": 1, "confidence": 0-100, "icd10": "...", "supporting_evidence": ["..."], "contradicting_evidence": ["..."], "suggested_tests": ["..."], "reasoning": "..."}], "correlations": [{"markers": ["..."], "pattern": "...", "clinical_significance": "..."}], "investigative_questions": ["..."]}
Do not include any text outside the JSON object.`

const validationSystemPrompt = `You are a clinical quality reviewer. Given the input panel and the draft diagnostic result, check the result for internal consistency and obvious reasoning errors.
Respond with a single JSON object:
{"validated": true | false, "explanation": "..."}
Do not include any text outside the JSON object.`

// buildPatientSection serializes the patient context for inclusion in a
// user prompt
func buildPatientSection(patient domain.PatientContext) string {
	var sb strings.Builder

	sb.WriteString("## Patient\n\n")
	sb.WriteString(fmt.Sprintf("- Age: %d\n", patient.Age))
	sb.WriteString(fmt.Sprintf("- Sex: %s\n", patient.Sex))
	if patient.ChiefComplaint != "" {
		sb.WriteString(fmt.Sprintf("- Chief complaint: %s\n", patient.ChiefComplaint))
	}
	for _, h := range patient.RelevantHistory {
		sb.WriteString(fmt.Sprintf("- History: %s\n", h))
	}
	if patient.SOAPNotes != "" {
		sb.WriteString(fmt.Sprintf("\n### SOAP notes\n\n%s\n", patient.SOAPNotes))
	}

	return sb.String()
}

// buildMarkerSection serializes the biomarker panel as a markdown table
func buildMarkerSection(markers []domain.Biomarker) string {
	var sb strings.Builder

	sb.WriteString("## Laboratory panel\n\n")
	sb.WriteString("| Marker | Value | Unit | Lab range | Functional range | Status |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")
	for _, m := range markers {
		sb.WriteString(fmt.Sprintf("| %s | %g | %s | %g-%g | %g-%g | %s |\n",
			m.Name, m.Value, m.Unit,
			m.LabRange.Low, m.LabRange.High,
			m.FunctionalRange.Low, m.FunctionalRange.High,
			m.Status))
	}

	return sb.String()
}

// buildTriagePrompt assembles the Layer 1 user prompt
func buildTriagePrompt(input *domain.AnalysisInput) string {
	var sb strings.Builder
	sb.WriteString(buildPatientSection(input.Patient))
	sb.WriteString("\n")
	sb.WriteString(buildMarkerSection(input.Biomarkers))
	return sb.String()
}

// buildSpecialtyPrompt assembles the Layer 2 user prompt, carrying the triage
// assessment forward
func buildSpecialtyPrompt(input *domain.AnalysisInput, triage domain.TriageResult) string {
	var sb strings.Builder

	sb.WriteString(buildPatientSection(input.Patient))
	sb.WriteString("\n")
	sb.WriteString(buildMarkerSection(input.Biomarkers))
	sb.WriteString("\n## Triage assessment\n\n")
	sb.WriteString(fmt.Sprintf("- Urgency: %s\n", triage.Urgency))
	sb.WriteString(fmt.Sprintf("- Recommended workflow: %s\n", triage.RecommendedWorkflow))
	for _, flag := range triage.RedFlags {
		sb.WriteString(fmt.Sprintf("- Red flag: %s\n", flag))
	}

	return sb.String()
}

// buildFusionPrompt assembles the Layer 3 user prompt from everything
// accumulated so far. Both Layer-3 models receive the identical prompt so
// their rankings differ only by reasoning, not by information.
func buildFusionPrompt(input *domain.AnalysisInput, triage domain.TriageResult, specialty domain.SpecialtyFinding) string {
	var sb strings.Builder

	sb.WriteString(buildPatientSection(input.Patient))
	sb.WriteString("\n")
	sb.WriteString(buildMarkerSection(input.Biomarkers))
	sb.WriteString("\n## Triage assessment\n\n")
	sb.WriteString(fmt.Sprintf("- Urgency: %s\n", triage.Urgency))
	for _, flag := range triage.RedFlags {
		sb.WriteString(fmt.Sprintf("- Red flag: %s\n", flag))
	}

	if len(specialty.ChainOfThought) > 0 || len(specialty.SpecialtyFindings) > 0 {
		sb.WriteString(fmt.Sprintf("\n## Specialty investigation (%s)\n\n", input.DetectedSpecialty))
		for _, step := range specialty.ChainOfThought {
			sb.WriteString(fmt.Sprintf("- %s\n", step))
		}
		if len(specialty.SpecialtyFindings) > 0 {
			if findings, err := json.Marshal(specialty.SpecialtyFindings); err == nil {
				sb.WriteString(fmt.Sprintf("\nFindings: %s\n", findings))
			}
		}
	}

	return sb.String()
}

// buildValidationPrompt assembles the Layer 4 user prompt: serialized input
// plus the serialized draft result
func buildValidationPrompt(input *domain.AnalysisInput, result *domain.LabAnalysisResult) string {
	var sb strings.Builder

	sb.WriteString("## Input\n\n")
	if data, err := json.Marshal(input); err == nil {
		sb.Write(data)
	}
	sb.WriteString("\n\n## Draft result\n\n")
	if data, err := json.Marshal(result); err == nil {
		sb.Write(data)
	}

	return sb.String()
}
