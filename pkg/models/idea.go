package models

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// IdeaInput is the structured business idea submitted for evaluation.
// It is treated as immutable once a run starts.
type IdeaInput struct {
	// Problem is the pain point the idea addresses.
	Problem string `json:"problem"`
	// Solution is the proposed product or service.
	Solution string `json:"solution"`
	// TargetMarket describes who pays for the solution.
	TargetMarket string `json:"target_market"`
	// BusinessModel describes how the idea makes money.
	BusinessModel string `json:"business_model"`
	// WhyYou is the optional founder-market-fit statement.
	WhyYou string `json:"why_you,omitempty"`
	// Email is the submitter's contact address.
	Email string `json:"email"`
}

// Validate checks that every required field is non-empty after trimming.
func (i IdeaInput) Validate() error {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"problem", i.Problem},
		{"solution", i.Solution},
		{"target_market", i.TargetMarket},
		{"business_model", i.BusinessModel},
		{"email", i.Email},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("idea input missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// IdeaEdits holds optional field edits supplied with an iteration request.
// Nil fields leave the prior value untouched.
type IdeaEdits struct {
	Problem       *string `json:"problem,omitempty"`
	Solution      *string `json:"solution,omitempty"`
	TargetMarket  *string `json:"target_market,omitempty"`
	BusinessModel *string `json:"business_model,omitempty"`
	WhyYou        *string `json:"why_you,omitempty"`
}

// Overlay returns a copy of the idea with the non-nil edits applied.
// Email is never editable across iterations.
func (i IdeaInput) Overlay(edits IdeaEdits) IdeaInput {
	out := i
	if edits.Problem != nil {
		out.Problem = *edits.Problem
	}
	if edits.Solution != nil {
		out.Solution = *edits.Solution
	}
	if edits.TargetMarket != nil {
		out.TargetMarket = *edits.TargetMarket
	}
	if edits.BusinessModel != nil {
		out.BusinessModel = *edits.BusinessModel
	}
	if edits.WhyYou != nil {
		out.WhyYou = *edits.WhyYou
	}
	return out
}

// Text renders the idea as the plain-text block handed to agents.
func (i IdeaInput) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Problem: %s\n", strings.TrimSpace(i.Problem))
	fmt.Fprintf(&b, "Solution: %s\n", strings.TrimSpace(i.Solution))
	fmt.Fprintf(&b, "Target Market: %s\n", strings.TrimSpace(i.TargetMarket))
	fmt.Fprintf(&b, "Business Model: %s\n", strings.TrimSpace(i.BusinessModel))
	if why := strings.TrimSpace(i.WhyYou); why != "" {
		fmt.Fprintf(&b, "Why You: %s\n", why)
	}
	return b.String()
}

// Title returns a short label for the idea, used as the project title.
func (i IdeaInput) Title() string {
	title := strings.TrimSpace(i.Solution)
	if title == "" {
		title = strings.TrimSpace(i.Problem)
	}
	if utf8.RuneCountInString(title) > 80 {
		runes := []rune(title)
		title = strings.TrimSpace(string(runes[:77])) + "..."
	}
	return title
}

// AuthContext is the per-request caller identity. The core treats it as
// opaque metadata attached to a new project.
type AuthContext struct {
	UserID          string `json:"user_id"`
	Email           string `json:"email"`
	IsAuthenticated bool   `json:"is_authenticated"`
}
