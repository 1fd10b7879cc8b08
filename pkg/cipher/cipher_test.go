package cipher

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/gatewayerr"
)

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		key       string
		plaintext string
	}{
		{"a-reasonably-long-key-string", "hello world"},
		{"k", ""},
		{"", "empty key still derives a buffer"},
		{"unicode-key-🔑", "token-with-unicode-🚀-value"},
	}

	for _, c := range cases {
		envelope, err := Encrypt(c.plaintext, c.key)
		if err != nil {
			t.Fatalf("Encrypt(%q, %q) error: %v", c.plaintext, c.key, err)
		}

		got, err := Decrypt(envelope, c.key)
		if err != nil {
			t.Fatalf("Decrypt() error: %v", err)
		}

		if got != c.plaintext {
			t.Errorf("round trip = %q, want %q", got, c.plaintext)
		}
	}
}

func TestNonceFreshness(t *testing.T) {
	const key = "fixed-key"
	const plaintext = "same plaintext every time"

	e1, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	e2, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	if e1 == e2 {
		t.Errorf("two independent encryptions of the same plaintext produced identical envelopes")
	}
}

func TestKeyIsolation(t *testing.T) {
	envelope, err := Encrypt("secret payload", "key-one")
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	if _, err := Decrypt(envelope, "key-two"); err == nil {
		t.Error("decrypting with the wrong key succeeded, want failure")
	}
}

func TestDecryptRejectsShortEnvelope(t *testing.T) {
	// "AA==" base64-decodes to a single byte, far shorter than the 12-byte nonce.
	_, err := Decrypt("AA==", "any-key")
	if err == nil {
		t.Fatal("Decrypt() of an envelope shorter than the nonce size succeeded, want error")
	}

	ge, ok := gatewayerr.As(err)
	if !ok {
		t.Fatalf("error is not a *gatewayerr.Error: %v", err)
	}
	if ge.Kind != gatewayerr.KindInternal {
		t.Errorf("Kind = %v, want %v", ge.Kind, gatewayerr.KindInternal)
	}
}

func TestDecryptRejectsInvalidBase64(t *testing.T) {
	_, err := Decrypt("not valid base64!!!", "any-key")
	if err == nil {
		t.Fatal("Decrypt() of invalid base64 succeeded, want error")
	}
	if !strings.Contains(err.Error(), "base64") {
		t.Errorf("error = %q, want it to mention base64", err.Error())
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	envelope, err := Encrypt("payload", "a-key")
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	raw[len(raw)-1] ^= 0xFF
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := Decrypt(tampered, "a-key"); err == nil {
		t.Error("decrypting tampered ciphertext succeeded, want AEAD verification failure")
	}
}
