package invoice

import (
	"strings"
	"testing"

	"autobill/pkg/models"
)

func TestCombine(t *testing.T) {
	tests := []struct {
		name        string
		correctness CorrectnessVerdict
		duplicate   DuplicateVerdict
		wantStatus  models.AIStatus
		wantScore   int
		wantFlag    string
	}{
		{
			name:        "clean pass",
			correctness: CorrectnessVerdict{Status: models.AIStatusValidated, AnomalyScore: 5, Confidence: 95},
			wantStatus:  models.AIStatusValidated,
			wantScore:   5,
		},
		{
			name:        "duplicate escalates clean verdict",
			correctness: CorrectnessVerdict{Status: models.AIStatusValidated, AnomalyScore: 0},
			duplicate:   DuplicateVerdict{IsDuplicate: true, DuplicateOf: "INV-20260301-0001", SimilarityScore: 98, Explanation: "Same period billed twice."},
			wantStatus:  models.AIStatusFlagged,
			wantScore:   90,
			wantFlag:    "INV-20260301-0001",
		},
		{
			name:        "duplicate keeps higher score",
			correctness: CorrectnessVerdict{Status: models.AIStatusFlagged, AnomalyScore: 95},
			duplicate:   DuplicateVerdict{IsDuplicate: true},
			wantStatus:  models.AIStatusFlagged,
			wantScore:   95,
			wantFlag:    "duplicate",
		},
		{
			name:        "high similarity warns but validates",
			correctness: CorrectnessVerdict{Status: models.AIStatusValidated, AnomalyScore: 10},
			duplicate:   DuplicateVerdict{SimilarityScore: 80},
			wantStatus:  models.AIStatusValidated,
			wantScore:   60,
			wantFlag:    "High similarity",
		},
		{
			name:        "similarity at threshold is ignored",
			correctness: CorrectnessVerdict{Status: models.AIStatusValidated, AnomalyScore: 10},
			duplicate:   DuplicateVerdict{SimilarityScore: 70},
			wantStatus:  models.AIStatusValidated,
			wantScore:   10,
		},
		{
			name:        "score re-derives flagged",
			correctness: CorrectnessVerdict{Status: models.AIStatusValidated, AnomalyScore: 70},
			wantStatus:  models.AIStatusFlagged,
			wantScore:   70,
		},
		{
			name:        "score re-derives validated",
			correctness: CorrectnessVerdict{Status: models.AIStatusFlagged, AnomalyScore: 45, Flags: []string{"rounding"}},
			wantStatus:  models.AIStatusValidated,
			wantScore:   45,
			wantFlag:    "rounding",
		},
		{
			name:        "fallback stays failed",
			correctness: FallbackCorrectness(),
			duplicate:   FallbackDuplicate(),
			wantStatus:  models.AIStatusFailed,
			wantScore:   100,
			wantFlag:    FallbackFlag,
		},
		{
			name:        "fallback with duplicate is flagged",
			correctness: FallbackCorrectness(),
			duplicate:   DuplicateVerdict{IsDuplicate: true},
			wantStatus:  models.AIStatusFlagged,
			wantScore:   100,
		},
		{
			name:        "scores are clamped",
			correctness: CorrectnessVerdict{Status: models.AIStatusValidated, AnomalyScore: -20},
			wantStatus:  models.AIStatusValidated,
			wantScore:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Combine(tt.correctness, tt.duplicate)
			if got.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", got.Status, tt.wantStatus)
			}
			if got.AnomalyScore != tt.wantScore {
				t.Errorf("score = %d, want %d", got.AnomalyScore, tt.wantScore)
			}
			if tt.wantFlag != "" && !strings.Contains(strings.Join(got.Flags, "|"), tt.wantFlag) {
				t.Errorf("flags %v missing %q", got.Flags, tt.wantFlag)
			}
			if got.Duplicate.IsDuplicate != tt.duplicate.IsDuplicate {
				t.Errorf("duplicate sub-result not embedded")
			}
		})
	}
}

func TestCombineAppendsDuplicateExplanation(t *testing.T) {
	got := Combine(
		CorrectnessVerdict{Status: models.AIStatusValidated, Suggestions: "Looks fine."},
		DuplicateVerdict{IsDuplicate: true, Explanation: "Same amount and period as INV-1."},
	)
	if got.Suggestions != "Looks fine. Same amount and period as INV-1." {
		t.Fatalf("suggestions = %q", got.Suggestions)
	}
}

func TestCombineDoesNotAliasInputFlags(t *testing.T) {
	flags := make([]string, 1, 4)
	flags[0] = "a"
	c := CorrectnessVerdict{Status: models.AIStatusValidated, Flags: flags}
	_ = Combine(c, DuplicateVerdict{IsDuplicate: true})
	if got := flags[:2][1]; got != "" {
		t.Fatalf("input slice was modified: %q", got)
	}
}

func TestVerdictHasWarnings(t *testing.T) {
	v := Combine(CorrectnessVerdict{Status: models.AIStatusValidated, AnomalyScore: 55}, DuplicateVerdict{})
	if !v.HasWarnings() || !v.Deliverable() {
		t.Fatalf("expected deliverable verdict with warnings: %+v", v)
	}
	v = Combine(CorrectnessVerdict{Status: models.AIStatusValidated, AnomalyScore: 39}, DuplicateVerdict{})
	if v.HasWarnings() {
		t.Fatal("did not expect warnings below 40")
	}
}

func TestVerdictLog(t *testing.T) {
	v := Combine(CorrectnessVerdict{Status: models.AIStatusValidated}, DuplicateVerdict{SimilarityScore: 12, Explanation: "different period"})
	log := v.Log(7)
	if log.InvoiceID != 7 || log.Status != models.AIStatusValidated || log.SimilarityScore != 12 {
		t.Fatalf("unexpected log %+v", log)
	}
	if string(log.Flags) != "[]" {
		t.Fatalf("flags = %s", log.Flags)
	}
}
