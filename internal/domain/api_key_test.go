package domain

import (
	"strings"
	"testing"
)

func TestGenerateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		wantErr bool
	}{
		{
			name:    "generate test key",
			env:     EnvTest,
			wantErr: false,
		},
		{
			name:    "generate live key",
			env:     EnvLive,
			wantErr: false,
		},
		{
			name:    "invalid environment",
			env:     "invalid",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plainKey, fingerprint, err := GenerateAPIKey(tt.env)

			if tt.wantErr {
				if err == nil {
					t.Errorf("GenerateAPIKey() expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("GenerateAPIKey() unexpected error: %v", err)
			}

			expectedPrefix := "fg_" + tt.env + "_"
			if !strings.HasPrefix(plainKey, expectedPrefix) {
				t.Errorf("plainKey = %s, want prefix %s", plainKey, expectedPrefix)
			}

			if len(plainKey) != len(expectedPrefix)+apiKeyLength {
				t.Errorf("plainKey length = %d, want %d", len(plainKey), len(expectedPrefix)+apiKeyLength)
			}

			if !IsValidFormat(plainKey) {
				t.Errorf("IsValidFormat(%s) = false, want true", plainKey)
			}

			if fingerprint != APIKeyFingerprint(plainKey) {
				t.Errorf("fingerprint = %s, want %s", fingerprint, APIKeyFingerprint(plainKey))
			}
		})
	}
}

func TestAPIKeyFingerprint(t *testing.T) {
	// sha256("test")
	const want = "9f86d081884c7d65"

	if got := APIKeyFingerprint("test"); got != want {
		t.Errorf("APIKeyFingerprint() = %s, want %s", got, want)
	}

	if APIKeyFingerprint("a") == APIKeyFingerprint("b") {
		t.Error("different keys share a fingerprint")
	}
}

func TestIsValidFormat(t *testing.T) {
	valid := "fg_live_" + strings.Repeat("A", apiKeyLength)

	tests := []struct {
		name string
		key  string
		want bool
	}{
		{name: "valid live key", key: valid, want: true},
		{name: "valid test key", key: "fg_test_" + strings.Repeat("z", apiKeyLength), want: true},
		{name: "wrong prefix", key: "sk_live_" + strings.Repeat("A", apiKeyLength), want: false},
		{name: "unknown environment", key: "fg_prod_" + strings.Repeat("A", apiKeyLength), want: false},
		{name: "too short", key: "fg_live_abc", want: false},
		{name: "invalid characters", key: "fg_live_" + strings.Repeat("-", apiKeyLength), want: false},
		{name: "empty", key: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidFormat(tt.key); got != tt.want {
				t.Errorf("IsValidFormat(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestGenerateAPIKey_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		key, _, err := GenerateAPIKey(EnvTest)
		if err != nil {
			t.Fatalf("GenerateAPIKey() error: %v", err)
		}
		if seen[key] {
			t.Fatalf("duplicate key generated: %s", key)
		}
		seen[key] = true
	}
}
