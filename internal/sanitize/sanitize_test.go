package sanitize

import (
	"testing"
)

func newTestSanitizer(t *testing.T, rules []Rule) *Sanitizer {
	t.Helper()
	s, err := NewSanitizer(rules)
	if err != nil {
		t.Fatalf("NewSanitizer failed: %v", err)
	}
	return s
}

func TestSanitizeRows_StringFields(t *testing.T) {
	t.Parallel()
	s := newTestSanitizer(t, []Rule{
		{Pattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`, Replacement: "[REDACTED]"},
	})
	rows := []map[string]interface{}{
		{"email": "alice@example.com", "age": 30},
	}
	out := s.SanitizeRows(rows)
	if out[0]["email"] != "[REDACTED]" {
		t.Fatalf("expected email redacted, got %v", out[0]["email"])
	}
	if out[0]["age"] != 30 {
		t.Fatalf("expected non-string field untouched, got %v", out[0]["age"])
	}
}

func TestSanitizeRows_RecursesIntoJSON(t *testing.T) {
	t.Parallel()
	s := newTestSanitizer(t, []Rule{{Pattern: `secret`, Replacement: "****"}})
	rows := []map[string]interface{}{
		{"doc": map[string]interface{}{
			"note": "the secret value",
			"tags": []interface{}{"secret", 1},
		}},
	}
	out := s.SanitizeRows(rows)
	doc := out[0]["doc"].(map[string]interface{})
	if doc["note"] != "the **** value" {
		t.Fatalf("expected nested string sanitized, got %v", doc["note"])
	}
	if doc["tags"].([]interface{})[0] != "****" {
		t.Fatalf("expected array element sanitized, got %v", doc["tags"])
	}
}

func TestHasRules(t *testing.T) {
	t.Parallel()
	if newTestSanitizer(t, nil).HasRules() {
		t.Fatal("expected HasRules false for empty rules")
	}
	if !newTestSanitizer(t, []Rule{{Pattern: "x", Replacement: "y"}}).HasRules() {
		t.Fatal("expected HasRules true")
	}
}

func TestNewSanitizer_InvalidPattern(t *testing.T) {
	t.Parallel()
	if _, err := NewSanitizer([]Rule{{Pattern: `(unclosed`, Replacement: ""}}); err == nil {
		t.Fatal("expected error for invalid regex pattern")
	}
}
