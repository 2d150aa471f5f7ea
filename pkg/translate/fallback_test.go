package translate

import "testing"

func TestIsFallbackSignal(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"404 without body", 404, "", true},
		{"structured unknown_url", 400, `{"error":{"code":"unknown_url","message":"x"}}`, true},
		{"structured not_found", 400, `{"error":{"code":"not_found"}}`, true},
		{"invalid text value", 400, `{"error":{"message":"Invalid value: 'text'. Supported values are: 'input_text'"}}`, true},
		{"unknown endpoint text", 400, "Unknown Endpoint /v1/responses", true},
		{"not found text", 500, "route NOT FOUND", true},
		{"unrelated 400", 400, `{"error":{"message":"max_tokens too large"}}`, false},
		{"unauthorized", 401, "not found", false},
		{"forbidden", 403, `{"error":{"code":"unknown_url"}}`, false},
		{"server error", 503, "upstream unavailable", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFallbackSignal(tt.status, []byte(tt.body)); got != tt.want {
				t.Errorf("IsFallbackSignal(%d, %q) = %v, want %v", tt.status, tt.body, got, tt.want)
			}
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"hello world!", 3},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
