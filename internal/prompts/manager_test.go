package prompts

import (
	"strings"
	"testing"
)

func TestNewManagerLoadsTemplates(t *testing.T) {
	m, err := NewManager()
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	for _, name := range []string{"system", "review_en", "review_hi", "review_gu"} {
		if _, ok := m.tpls[name]; !ok {
			t.Errorf("template %q not loaded", name)
		}
	}
}

func TestReviewPrompt(t *testing.T) {
	m, err := NewManager()
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	tests := []struct {
		name     string
		code     string
		data     ReviewData
		contains []string
		absent   []string
	}{
		{
			name:     "english with type and tags",
			code:     "en",
			data:     ReviewData{BusinessName: "Chai Corner", BusinessType: "cafe", Tags: "masala chai, quick service"},
			contains: []string{"Chai Corner", "(cafe)", "focusing on: masala chai, quick service", "ONLY in English"},
		},
		{
			name:     "english without optional fields",
			code:     "en",
			data:     ReviewData{BusinessName: "Chai Corner"},
			contains: []string{"Chai Corner"},
			absent:   []string{"(", "focusing on:"},
		},
		{
			name:     "hindi",
			code:     "hi",
			data:     ReviewData{BusinessName: "Chai Corner"},
			contains: []string{"Chai Corner", "हिंदी"},
		},
		{
			name:     "gujarati long-form alias",
			code:     "gujarati",
			data:     ReviewData{BusinessName: "Chai Corner"},
			contains: []string{"Chai Corner", "ગુજરાતી"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.ReviewPrompt(tt.code, tt.data)
			if err != nil {
				t.Fatalf("ReviewPrompt(%q) error = %v", tt.code, err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("prompt missing %q: %q", want, got)
				}
			}
			for _, bad := range tt.absent {
				if strings.Contains(got, bad) {
					t.Errorf("prompt should not contain %q: %q", bad, got)
				}
			}
		})
	}
}

func TestReviewPromptUnsupportedLanguage(t *testing.T) {
	m, err := NewManager()
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if _, err := m.ReviewPrompt("fr", ReviewData{BusinessName: "X"}); err == nil {
		t.Error("expected error for unsupported language code")
	}
}

func TestSystemPrompt(t *testing.T) {
	m, err := NewManager()
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	got, err := m.SystemPrompt()
	if err != nil {
		t.Fatalf("SystemPrompt() error = %v", err)
	}
	if !strings.Contains(got, "real customer") {
		t.Errorf("unexpected system prompt: %q", got)
	}
}
