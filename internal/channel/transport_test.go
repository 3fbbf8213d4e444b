package channel

import "testing"

func TestEndpointSchemeDerivation(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8000", "ws://localhost:8000/ws/analysis/job-1"},
		{"https://clipsight.example.com", "wss://clipsight.example.com/ws/analysis/job-1"},
		{"ws://localhost:8000", "ws://localhost:8000/ws/analysis/job-1"},
		{"wss://clipsight.example.com", "wss://clipsight.example.com/ws/analysis/job-1"},
		{"http://localhost:8000/dashboard?tab=jobs", "ws://localhost:8000/ws/analysis/job-1"},
	}

	for _, tt := range tests {
		got, err := Endpoint(tt.base, "job-1")
		if err != nil {
			t.Errorf("Endpoint(%q): %v", tt.base, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Endpoint(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestEndpointRejectsUnknownScheme(t *testing.T) {
	if _, err := Endpoint("ftp://example.com", "job-1"); err == nil {
		t.Error("expected error for ftp scheme")
	}
}
