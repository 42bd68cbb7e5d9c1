package webhook

import (
	"strings"
	"testing"
)

func TestSignAndVerify(t *testing.T) {
	secret := "endpoint-secret"
	payload := []byte(`{"type":"step.advanced","session_id":"sess-9","data":{"step_index":2}}`)

	sig := Sign(secret, payload)
	if !strings.HasPrefix(sig, "sha256=") {
		t.Fatalf("signature = %q, want sha256= prefix", sig)
	}

	tests := []struct {
		name      string
		secret    string
		payload   []byte
		signature string
		want      bool
	}{
		{"genuine delivery", secret, payload, sig, true},
		{"wrong secret", "other-secret", payload, sig, false},
		{"tampered payload", secret, []byte(`{"type":"step.advanced","data":{}}`), sig, false},
		{"mangled signature", secret, payload, sig + "00", false},
		{"empty signature", secret, payload, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Verify(tt.secret, tt.payload, tt.signature); got != tt.want {
				t.Errorf("Verify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGenerateSecret(t *testing.T) {
	first, err := GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 64 {
		t.Errorf("secret length = %d hex chars, want 64", len(first))
	}

	second, err := GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("consecutive secrets must differ")
	}
}
