package service

import (
	"strings"
)

// descriptivePrefixes are stripped before merging because models prepend them
// inconsistently ("syndrome of X" vs "X syndrome" vs "X").
var descriptivePrefixes = []string{
	"syndrome of ",
	"disease of ",
	"disorder of ",
	"diagnosis of ",
	"suspected ",
	"probable ",
}

// diagnosisSynonyms canonicalizes known abbreviation/full-form clusters and
// alternate spellings of the same condition. Two independently-prompted
// models rarely phrase a diagnosis identically, so the merge key has to
// absorb the common variants. Keys and values are already normalized
// (lower-case, single-spaced).
var diagnosisSynonyms = map[string]string{
	// Diabetes
	"t2dm":                      "type 2 diabetes mellitus",
	"dm2":                       "type 2 diabetes mellitus",
	"dm type 2":                 "type 2 diabetes mellitus",
	"diabetes type 2":           "type 2 diabetes mellitus",
	"type 2 diabetes":           "type 2 diabetes mellitus",
	"type ii diabetes mellitus": "type 2 diabetes mellitus",
	"t1dm":                      "type 1 diabetes mellitus",
	"type 1 diabetes":           "type 1 diabetes mellitus",
	"prediabetes":               "pre-diabetes",

	// Thyroid
	"hypothyroid":             "hypothyroidism",
	"subclinical hypothyroid": "subclinical hypothyroidism",
	"hyperthyroid":            "hyperthyroidism",
	"hashimoto thyroiditis":   "hashimoto's thyroiditis",
	"hashimotos thyroiditis":  "hashimoto's thyroiditis",
	"graves disease":          "graves' disease",
	"hipotireoidismo":         "hipotiroidismo",
	"hipertireoidismo":        "hipertiroidismo",

	// Hematology
	"anaemia":                 "anemia",
	"ida":                     "iron deficiency anemia",
	"iron-deficiency anemia":  "iron deficiency anemia",
	"iron deficiency anaemia": "iron deficiency anemia",
	"b12 deficiency":          "vitamin b12 deficiency",
	"cobalamin deficiency":    "vitamin b12 deficiency",

	// Metabolic / renal / hepatic
	"ckd":                              "chronic kidney disease",
	"nafld":                            "non-alcoholic fatty liver disease",
	"nonalcoholic fatty liver disease": "non-alcoholic fatty liver disease",
	"htn":                              "hypertension",
	"high blood pressure":              "hypertension",
	"dyslipidemia":                     "hyperlipidemia",
	"vit d deficiency":                 "vitamin d deficiency",

	// Endocrine / other
	"pcos":                        "polycystic ovary syndrome",
	"polycystic ovarian syndrome": "polycystic ovary syndrome",
	"gerd":                        "gastroesophageal reflux disease",
	"uti":                         "urinary tract infection",
	"afib":                        "atrial fibrillation",
}

// NormalizeDiagnosisName produces the merge key for a diagnosis name:
// lower-cased, trimmed, descriptive prefixes stripped, internal whitespace
// collapsed, known synonyms canonicalized. Two diagnoses merge iff their
// normalized names are equal.
func NormalizeDiagnosisName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.Join(strings.Fields(normalized), " ")

	for _, prefix := range descriptivePrefixes {
		if strings.HasPrefix(normalized, prefix) {
			normalized = strings.TrimSpace(strings.TrimPrefix(normalized, prefix))
			break
		}
	}

	if canonical, ok := diagnosisSynonyms[normalized]; ok {
		return canonical
	}

	return normalized
}
