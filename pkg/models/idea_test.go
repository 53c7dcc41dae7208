package models

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func validIdea() IdeaInput {
	return IdeaInput{
		Problem:       "X wastes time on Y",
		Solution:      "AI does Y for X",
		TargetMarket:  "Z",
		BusinessModel: "subscription",
		Email:         "a@b.com",
	}
}

func TestIdeaInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*IdeaInput)
		wantErr string
	}{
		{"valid idea", func(*IdeaInput) {}, ""},
		{"why you is optional", func(i *IdeaInput) { i.WhyYou = "" }, ""},
		{"blank problem", func(i *IdeaInput) { i.Problem = "   " }, "problem"},
		{"missing email", func(i *IdeaInput) { i.Email = "" }, "email"},
		{"whitespace business model", func(i *IdeaInput) { i.BusinessModel = "\n\t" }, "business_model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idea := validIdea()
			tt.mutate(&idea)
			err := idea.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestIdeaInput_Overlay(t *testing.T) {
	base := validIdea()
	market := "SMB accountants"
	edited := base.Overlay(IdeaEdits{TargetMarket: &market})

	if edited.TargetMarket != market {
		t.Errorf("TargetMarket = %q, want %q", edited.TargetMarket, market)
	}
	if edited.Problem != base.Problem {
		t.Errorf("Problem changed to %q", edited.Problem)
	}
	if base.TargetMarket != "Z" {
		t.Errorf("Overlay mutated the receiver: %q", base.TargetMarket)
	}
}

func TestIdeaInput_Text(t *testing.T) {
	text := validIdea().Text()
	for _, want := range []string{"Problem: X wastes time on Y", "Business Model: subscription"} {
		if !strings.Contains(text, want) {
			t.Errorf("Text() missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Why You") {
		t.Error("Text() should omit empty Why You")
	}
}

func TestIdeaInput_Title(t *testing.T) {
	tests := []struct {
		name     string
		idea     IdeaInput
		want     string
		wantRune int
	}{
		{"solution", IdeaInput{Solution: "  SMS booking  ", Problem: "p"}, "SMS booking", 11},
		{"falls back to problem", IdeaInput{Problem: "Clinics lose hours"}, "Clinics lose hours", 18},
		{"long ascii", IdeaInput{Solution: strings.Repeat("a", 100)}, strings.Repeat("a", 77) + "...", 80},
		{"long multibyte", IdeaInput{Solution: strings.Repeat("é", 90)}, strings.Repeat("é", 77) + "...", 80},
		{"exactly 80 runes kept", IdeaInput{Solution: strings.Repeat("日", 80)}, strings.Repeat("日", 80), 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.idea.Title()
			if got != tt.want {
				t.Errorf("Title() = %q, want %q", got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("Title() is not valid UTF-8: %q", got)
			}
			if n := utf8.RuneCountInString(got); n != tt.wantRune {
				t.Errorf("Title() has %d runes, want %d", n, tt.wantRune)
			}
		})
	}
}
