package invoice

import (
	"fmt"
	"strings"

	"autobill/pkg/models"
)

// Risk thresholds of the combiner. Fixed policy.
const (
	FlagThreshold       = 70 // score at or above this is flagged
	DuplicateScoreFloor = 90 // minimum score of a confirmed duplicate
	SimilarityThreshold = 70 // similarity above this raises a warning
	SimilarScoreFloor   = 60 // minimum score of a highly similar invoice
	WarningThreshold    = 40 // score at or above this is validated with warnings
)

// FallbackFlag is attached when the correctness call could not produce a verdict.
const FallbackFlag = "AI validation failed - manual review required"

// FallbackCorrectness is substituted when the correctness collaborator fails.
func FallbackCorrectness() CorrectnessVerdict {
	return CorrectnessVerdict{
		Status:       models.AIStatusFailed,
		AnomalyScore: 100,
		Flags:        []string{FallbackFlag},
		Confidence:   0,
	}
}

// FallbackDuplicate is substituted when the duplicate collaborator fails.
func FallbackDuplicate() DuplicateVerdict {
	return DuplicateVerdict{IsDuplicate: false, SimilarityScore: 0}
}

// Combine merges a correctness verdict with a duplicate verdict.
//
// A confirmed duplicate forces "flagged" with a score of at least 90. A similarity
// above 70 raises the score to at least 60. The status is then re-derived from the
// score, except that a "failed" correctness verdict stays failed unless the
// duplicate branch flagged it. Scores in [40,70) are validated with their flags kept.
func Combine(correctness CorrectnessVerdict, duplicate DuplicateVerdict) Verdict {
	v := Verdict{
		Status:       correctness.Status,
		AnomalyScore: clampScore(correctness.AnomalyScore),
		Flags:        append([]string(nil), correctness.Flags...),
		Suggestions:  correctness.Suggestions,
		Confidence:   clampScore(correctness.Confidence),
		Duplicate:    duplicate,
	}
	v.Duplicate.SimilarityScore = clampScore(duplicate.SimilarityScore)

	forced := false
	switch {
	case duplicate.IsDuplicate:
		forced = true
		v.Status = models.AIStatusFlagged
		v.AnomalyScore = max(v.AnomalyScore, DuplicateScoreFloor)
		ref := duplicate.DuplicateOf
		if ref == "" {
			ref = "an existing invoice"
		}
		v.Flags = append(v.Flags, fmt.Sprintf("Potential duplicate of %s", ref))
		if duplicate.Explanation != "" {
			v.Suggestions = joinSuggestion(v.Suggestions, duplicate.Explanation)
		}
	case v.Duplicate.SimilarityScore > SimilarityThreshold:
		v.Flags = append(v.Flags, fmt.Sprintf("High similarity (%d%%) to a recent invoice", v.Duplicate.SimilarityScore))
		v.AnomalyScore = max(v.AnomalyScore, SimilarScoreFloor)
	}

	if v.Status == models.AIStatusFailed && !forced {
		return v
	}
	if v.AnomalyScore >= FlagThreshold {
		v.Status = models.AIStatusFlagged
	} else {
		v.Status = models.AIStatusValidated
	}
	return v
}

// HasWarnings reports a validated verdict whose score sits in the warning band.
func (v Verdict) HasWarnings() bool {
	return v.Status == models.AIStatusValidated && v.AnomalyScore >= WarningThreshold
}

func clampScore(s int) int {
	return min(max(s, 0), 100)
}

func joinSuggestion(existing, extra string) string {
	existing = strings.TrimSpace(existing)
	if existing == "" {
		return extra
	}
	return existing + " " + extra
}
