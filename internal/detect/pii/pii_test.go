package pii

import "testing"

func TestDetectAndRedactPhoneAndEmail(t *testing.T) {
	d := NewDetector()
	text := "Call me at (555) 123-4567 or john@example.com"
	entities, err := d.Detect(text, nil)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("expected 2 entities, got %d: %+v", len(entities), entities)
	}

	redacted := Redact(text, entities)
	want := "Call me at [PHONE_REDACTED] or [EMAIL_REDACTED]"
	if redacted != want {
		t.Fatalf("redacted = %q, want %q", redacted, want)
	}
}

func TestRedactDoesNotLeakOriginalSubstrings(t *testing.T) {
	d := NewDetector()
	text := "SSN 123-45-6789 belongs to no one in particular"
	entities, err := d.Detect(text, nil)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	redacted := Redact(text, entities)
	for _, e := range entities {
		if containsSubstring(redacted, e.Value) {
			t.Fatalf("redacted text %q still contains entity value %q", redacted, e.Value)
		}
	}
}

func containsSubstring(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
