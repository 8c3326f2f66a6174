package service

import (
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/labinsight-engine/internal/domain"
)

// ModelRanking is one model's ranked differential, handed to the aggregator
// after its Layer-3 call settles
type ModelRanking struct {
	ModelID   string
	Diagnoses []domain.ModelDiagnosis
	ElapsedMs int64
}

// ConsensusAggregator merges two independently-ranked diagnosis lists into a
// single calibrated ranking. It is a pure function over its inputs: no I/O,
// no shared state, safe for unbounded concurrent use.
type ConsensusAggregator struct {
	cfg    domain.ConsensusConfig
	logger *logrus.Logger
}

// NewConsensusAggregator creates a new consensus aggregator
func NewConsensusAggregator(cfg domain.ConsensusConfig, logger *logrus.Logger) *ConsensusAggregator {
	if cfg.TopN == 0 {
		cfg = DefaultConsensusConfig()
	}
	return &ConsensusAggregator{
		cfg:    cfg,
		logger: logger,
	}
}

// DefaultConsensusConfig returns the standard aggregator tuning
func DefaultConsensusConfig() domain.ConsensusConfig {
	return domain.ConsensusConfig{
		TopN:                5,
		MaxScoredRank:       10,
		ModerateRankGap:     1,
		WeakRankGap:         2,
		StrongMultiplier:    1.10,
		ModerateMultiplier:  1.00,
		WeakMultiplier:      0.90,
		SingleMultiplier:    0.80,
		DivergentMultiplier: 0.70,
		MaxConfidence:       99,
	}
}

// diagnosisScore accumulates the contributions for one normalized diagnosis
// identity. Built and discarded within a single aggregation call.
type diagnosisScore struct {
	normalizedName string
	displayName    string
	icd10          string
	score          float64
	primary        *domain.ModelContribution
	challenger     *domain.ModelContribution

	supporting    []string
	contradicting []string
	tests         []string
	seenSupport   map[string]bool
	seenContra    map[string]bool
	seenTests     map[string]bool
}

// ReciprocalRankScore returns 1/rank for ranks within the scored window and 0
// otherwise, so diagnoses both models place highly accumulate large scores
// while idiosyncratic tail guesses contribute little.
func (a *ConsensusAggregator) ReciprocalRankScore(rank int) float64 {
	if rank < 1 || rank > a.cfg.MaxScoredRank {
		return 0
	}
	return 1.0 / float64(rank)
}

// Aggregate merges the primary and challenger rankings into the top-N
// consensus diagnoses plus agreement metrics. When the challenger produced no
// usable output the aggregator runs in single-model mode and emits the same
// output shape with every diagnosis tagged single.
func (a *ConsensusAggregator) Aggregate(primary, challenger ModelRanking) ([]domain.ConsensusDiagnosis, domain.ConsensusMetrics) {
	index := make(map[string]*diagnosisScore)
	order := make([]*diagnosisScore, 0, len(primary.Diagnoses)+len(challenger.Diagnoses))

	accumulate := func(ranking ModelRanking, isPrimary bool) {
		for i, d := range ranking.Diagnoses {
			rank := d.Rank
			if rank <= 0 {
				rank = i + 1
			}

			key := NormalizeDiagnosisName(d.Name)
			ds, ok := index[key]
			if !ok {
				ds = &diagnosisScore{
					normalizedName: key,
					displayName:    d.Name,
					seenSupport:    make(map[string]bool),
					seenContra:     make(map[string]bool),
					seenTests:      make(map[string]bool),
				}
				index[key] = ds
				order = append(order, ds)
			}

			ds.score += a.ReciprocalRankScore(rank)
			contribution := &domain.ModelContribution{
				Rank:       rank,
				Confidence: d.Confidence,
				Reasoning:  d.Reasoning,
			}
			if isPrimary {
				ds.primary = contribution
			} else {
				ds.challenger = contribution
			}

			if ds.icd10 == "" && d.ICD10 != "" {
				ds.icd10 = d.ICD10
			}
			ds.supporting = mergeUnique(ds.supporting, ds.seenSupport, d.SupportingEvidence)
			ds.contradicting = mergeUnique(ds.contradicting, ds.seenContra, d.ContradictingEvidence)
			ds.tests = mergeUnique(ds.tests, ds.seenTests, d.SuggestedTests)
		}
	}

	accumulate(primary, true)
	accumulate(challenger, false)

	// Stable sort keeps first-encounter order as the tie-break.
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].score > order[j].score
	})
	if len(order) > a.cfg.TopN {
		order = order[:a.cfg.TopN]
	}

	diagnoses := make([]domain.ConsensusDiagnosis, 0, len(order))
	var strongCount, moderateCount, divergentCount int
	var divergentNames []string

	for _, ds := range order {
		level := a.classify(ds)
		switch level {
		case domain.CONSENSUS_STRONG:
			strongCount++
		case domain.CONSENSUS_MODERATE:
			moderateCount++
		case domain.CONSENSUS_DIVERGENT:
			divergentCount++
			divergentNames = append(divergentNames, ds.displayName)
		}

		diagnoses = append(diagnoses, domain.ConsensusDiagnosis{
			DifferentialDiagnosis: domain.DifferentialDiagnosis{
				Name:                  ds.displayName,
				ICD10:                 ds.icd10,
				Confidence:            a.calibrate(ds, level),
				SupportingEvidence:    ds.supporting,
				ContradictingEvidence: ds.contradicting,
				SuggestedTests:        ds.tests,
				Reasoning:             ds.reasoning(),
			},
			AggregateScore: ds.score,
			ConsensusLevel: level,
			ModelDetails: domain.ModelDetails{
				ModelA: ds.primary,
				ModelB: ds.challenger,
			},
		})
	}

	metrics := domain.ConsensusMetrics{
		ModelsUsed:             contributingModels(primary, challenger),
		ModerateConsensusCount: moderateCount,
		DivergentCount:         divergentCount,
		DivergentDiagnoses:     divergentNames,
	}
	if len(diagnoses) > 0 {
		metrics.StrongConsensusRate = int(math.Round(100 * float64(strongCount) / float64(len(diagnoses))))
	}
	if primary.ElapsedMs > 0 || challenger.ElapsedMs > 0 {
		metrics.ModelTimings = make(map[string]int64)
		if primary.ElapsedMs > 0 {
			metrics.ModelTimings[primary.ModelID] = primary.ElapsedMs
		}
		if challenger.ElapsedMs > 0 {
			metrics.ModelTimings[challenger.ModelID] = challenger.ElapsedMs
		}
	}

	a.logger.WithFields(logrus.Fields{
		"merged":    len(index),
		"kept":      len(diagnoses),
		"strong":    strongCount,
		"divergent": divergentCount,
		"models":    metrics.ModelsUsed,
	}).Debug("Consensus aggregation completed")

	return diagnoses, metrics
}

// classify buckets a diagnosis by how closely the two models agree on it
func (a *ConsensusAggregator) classify(ds *diagnosisScore) domain.ConsensusLevel {
	if ds.primary == nil || ds.challenger == nil {
		return domain.CONSENSUS_SINGLE
	}

	gap := ds.primary.Rank - ds.challenger.Rank
	if gap < 0 {
		gap = -gap
	}

	switch {
	case gap == 0:
		return domain.CONSENSUS_STRONG
	case gap <= a.cfg.ModerateRankGap:
		return domain.CONSENSUS_MODERATE
	case gap <= a.cfg.WeakRankGap:
		return domain.CONSENSUS_WEAK
	default:
		return domain.CONSENSUS_DIVERGENT
	}
}

// calibrate computes the reported confidence: mean of the contributing
// models' confidences, scaled by the per-level factor, rounded and clamped.
// The ceiling is deliberate: diagnostic confidence is never reported as
// certain.
func (a *ConsensusAggregator) calibrate(ds *diagnosisScore, level domain.ConsensusLevel) int {
	var base float64
	switch {
	case ds.primary != nil && ds.challenger != nil:
		base = (float64(ds.primary.Confidence) + float64(ds.challenger.Confidence)) / 2
	case ds.primary != nil:
		base = float64(ds.primary.Confidence)
	case ds.challenger != nil:
		base = float64(ds.challenger.Confidence)
	}

	confidence := int(math.Round(base * a.multiplierFor(level)))
	if confidence < 0 {
		confidence = 0
	}
	if confidence > a.cfg.MaxConfidence {
		confidence = a.cfg.MaxConfidence
	}
	return confidence
}

// multiplierFor returns the calibration factor for a consensus level
func (a *ConsensusAggregator) multiplierFor(level domain.ConsensusLevel) float64 {
	switch level {
	case domain.CONSENSUS_STRONG:
		return a.cfg.StrongMultiplier
	case domain.CONSENSUS_MODERATE:
		return a.cfg.ModerateMultiplier
	case domain.CONSENSUS_WEAK:
		return a.cfg.WeakMultiplier
	case domain.CONSENSUS_DIVERGENT:
		return a.cfg.DivergentMultiplier
	default:
		return a.cfg.SingleMultiplier
	}
}

// reasoning picks the first non-empty reasoning, primary model first
func (ds *diagnosisScore) reasoning() string {
	if ds.primary != nil && ds.primary.Reasoning != "" {
		return ds.primary.Reasoning
	}
	if ds.challenger != nil {
		return ds.challenger.Reasoning
	}
	return ""
}

// contributingModels lists the models that produced usable output, primary
// first
func contributingModels(primary, challenger ModelRanking) []string {
	models := make([]string, 0, 2)
	if len(primary.Diagnoses) > 0 {
		models = append(models, primary.ModelID)
	}
	if len(challenger.Diagnoses) > 0 {
		models = append(models, challenger.ModelID)
	}
	return models
}

// mergeUnique appends items not yet seen, deduplicating case-insensitively
// while preserving first-seen casing
func mergeUnique(dst []string, seen map[string]bool, items []string) []string {
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if seen[key] {
			continue
		}
		seen[key] = true
		dst = append(dst, trimmed)
	}
	return dst
}
