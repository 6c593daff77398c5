package push

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	// Public key is a base64url-encoded uncompressed P-256 point, 65 bytes.
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	// Private key is a base64url-encoded P-256 scalar, 32 bytes.
	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

func TestServiceConfigured(t *testing.T) {
	if NewService("", "", "ops@example.com").Configured() {
		t.Error("service without keys must report unconfigured")
	}
	if !NewService("pub", "priv", "ops@example.com").Configured() {
		t.Error("service with keys must report configured")
	}
}

func TestNewSubmissionPayload(t *testing.T) {
	p := NewSubmissionPayload("Contact", 7)
	if !strings.Contains(p.Body, "Contact") {
		t.Errorf("body = %q, want form title", p.Body)
	}
	if p.URL != "/forms/7/submissions" {
		t.Errorf("url = %q", p.URL)
	}
	if p.Tag != "form-7" {
		t.Errorf("tag = %q, want form-7", p.Tag)
	}
}
