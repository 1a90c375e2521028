package webhooks

import (
	"testing"
)

func TestSign(t *testing.T) {
	secret := "secret"
	payload := []byte("payload")

	// Calculated using: echo -n "payload" | openssl dgst -sha256 -hmac "secret"
	expected := "b82fcb791acec57859b989b430a826488ce2e479fdf92326bd0a2e8375a42ba4"

	got := Sign(secret, payload)

	if got != expected {
		t.Errorf("Sign() = %v, want %v", got, expected)
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1","type":"account.created"}`)

	sig := Sign(secret, payload)
	if !Verify(secret, payload, sig) {
		t.Fatal("signature should verify against its own payload")
	}

	// Any single-byte mutation breaks verification.
	for i := range payload {
		mutated := append([]byte(nil), payload...)
		mutated[i] ^= 0x01
		if Verify(secret, mutated, sig) {
			t.Fatalf("mutated payload at byte %d should not verify", i)
		}
	}

	if Verify("wrong-secret", payload, sig) {
		t.Error("wrong secret should not verify")
	}
	if Verify(secret, payload, "deadbeef") {
		t.Error("bogus signature should not verify")
	}
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}

	b, _ := GenerateSecret()
	if a == b {
		t.Error("secrets must be random")
	}
}
