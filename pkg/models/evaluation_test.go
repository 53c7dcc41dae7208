package models

import "testing"

func TestEvaluationStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from EvaluationStatus
		to   EvaluationStatus
		want bool
	}{
		{EvaluationPending, EvaluationProcessing, true},
		{EvaluationPending, EvaluationFailed, true},
		{EvaluationPending, EvaluationCompleted, false},
		{EvaluationProcessing, EvaluationCompleted, true},
		{EvaluationProcessing, EvaluationFailed, true},
		{EvaluationProcessing, EvaluationPending, false},
		{EvaluationCompleted, EvaluationFailed, false},
		{EvaluationFailed, EvaluationProcessing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluationStatus_Terminal(t *testing.T) {
	if EvaluationProcessing.Terminal() {
		t.Error("processing should not be terminal")
	}
	if !EvaluationCompleted.Terminal() || !EvaluationFailed.Terminal() {
		t.Error("completed and failed should be terminal")
	}
}

func TestClampScore(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-3, 1}, {0, 1}, {1, 1}, {7, 7}, {10, 10}, {11, 10}, {99, 10},
	}
	for _, tt := range tests {
		if got := ClampScore(tt.in); got != tt.want {
			t.Errorf("ClampScore(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDimensionScores_Clamped(t *testing.T) {
	s := DimensionScores{MarketOpportunity: 0, ProblemSolutionFit: 12, ExecutionFeasibility: 4, BusinessModel: -1, Timing: 10}
	got := s.Clamped()
	want := DimensionScores{MarketOpportunity: 1, ProblemSolutionFit: 10, ExecutionFeasibility: 4, BusinessModel: 1, Timing: 10}
	if got != want {
		t.Errorf("Clamped() = %+v, want %+v", got, want)
	}
}

func TestDimension_Category(t *testing.T) {
	seen := make(map[ActionCategory]bool)
	for _, d := range Dimensions {
		c := d.Category()
		if !c.Valid() {
			t.Errorf("%s maps to invalid category %q", d, c)
		}
		seen[c] = true
	}
	if len(seen) != len(Dimensions) {
		t.Errorf("dimensions should map to distinct categories, got %v", seen)
	}
}

func TestSkill_Scope(t *testing.T) {
	s := Skill{ApplyPoint: ApplyWrap, AgentScope: []string{AgentFire}}
	if !s.AppliesTo(AgentFire) || s.AppliesTo(AgentIntake) {
		t.Error("AppliesTo should honor agent scope")
	}
	if !s.RunsAt(ApplyPre) || !s.RunsAt(ApplyPost) {
		t.Error("wrap skills run at both points")
	}
	if !(Skill{}).AppliesTo("anything") {
		t.Error("empty scope applies to every agent")
	}
}
