package core

import (
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}

	if len(ids) != numIDs {
		t.Errorf("Expected %d unique IDs, got %d", numIDs, len(ids))
	}
}

// TestIDIsEmpty tests ID emptiness check
func TestIDIsEmpty(t *testing.T) {
	if !ID("").IsEmpty() {
		t.Error("Expected empty ID to be empty")
	}
	if ID("not-empty").IsEmpty() {
		t.Error("Expected non-empty ID to not be empty")
	}
}

// TestParseRunID tests run ID parsing
func TestParseRunID(t *testing.T) {
	valid := NewRunID()

	tests := []struct {
		input    string
		expected RunID
		hasError bool
	}{
		{valid.String(), valid, false},
		{"  " + valid.String() + " ", valid, false},
		{"run-123", "", true},
		{"", "", true},
	}

	for _, test := range tests {
		result, err := ParseRunID(test.input)
		if test.hasError && err == nil {
			t.Errorf("Expected error for input '%s', but got none", test.input)
		}
		if !test.hasError && err != nil {
			t.Errorf("Unexpected error for input '%s': %v", test.input, err)
		}
		if result != test.expected {
			t.Errorf("Expected %s, got %s", test.expected, result)
		}
	}
}

func TestRunFingerprint_Deterministic(t *testing.T) {
	def := []byte(`{"name":"asc_only"}`)
	data := NewHash([]byte("rows"))
	settings := map[string]interface{}{"max_iterations": 500, "gradient_tol": 1e-6}

	fp1 := ComputeRunFingerprint(def, data, "halton", 2000, 42, settings)
	fp2 := ComputeRunFingerprint(def, data, "halton", 2000, 42, settings)
	if fp1 != fp2 {
		t.Errorf("Fingerprints not identical: %s vs %s", fp1, fp2)
	}

	if fp3 := ComputeRunFingerprint(def, data, "halton", 2000, 43, settings); fp3 == fp1 {
		t.Error("Different seeds should produce different fingerprints")
	}
	if fp4 := ComputeRunFingerprint(def, data, "pseudo", 2000, 42, settings); fp4 == fp1 {
		t.Error("Different draw methods should produce different fingerprints")
	}
	if len(fp1.Short()) != 12 {
		t.Errorf("Short() should return 12 characters, got %q", fp1.Short())
	}
}
