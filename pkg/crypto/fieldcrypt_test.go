package crypto

import (
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	fe, err := DeriveFieldEncryptor([]byte("master-secret"), "oauth-tokens")
	if err != nil {
		t.Fatal(err)
	}

	stored, err := fe.Encrypt("very-secret-access-token")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stored, "enc:v1:") {
		t.Errorf("stored value should carry the version prefix: %q", stored)
	}
	if strings.Contains(stored, "very-secret") {
		t.Error("ciphertext must not contain the plaintext")
	}

	plain, err := fe.Decrypt(stored)
	if err != nil {
		t.Fatal(err)
	}
	if plain != "very-secret-access-token" {
		t.Errorf("round trip = %q", plain)
	}
}

func TestDecryptPlaintextPassthrough(t *testing.T) {
	fe, err := DeriveFieldEncryptor([]byte("master-secret"), "oauth-tokens")
	if err != nil {
		t.Fatal(err)
	}

	plain, err := fe.Decrypt("legacy-plaintext-token")
	if err != nil {
		t.Fatal(err)
	}
	if plain != "legacy-plaintext-token" {
		t.Errorf("unprefixed values pass through unchanged, got %q", plain)
	}
}

func TestPurposeIsolation(t *testing.T) {
	a, _ := DeriveFieldEncryptor([]byte("master-secret"), "oauth-tokens")
	b, _ := DeriveFieldEncryptor([]byte("master-secret"), "webhooks")

	stored, err := a.Encrypt("token")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Decrypt(stored); err == nil {
		t.Error("a different purpose must not decrypt the value")
	}
}

func TestDecryptCorrupted(t *testing.T) {
	fe, _ := DeriveFieldEncryptor([]byte("master-secret"), "oauth-tokens")

	if _, err := fe.Decrypt("enc:v1:not-base64!!!"); err == nil {
		t.Error("invalid base64 should fail")
	}
	if _, err := fe.Decrypt("enc:v1:YQ=="); err == nil {
		t.Error("truncated ciphertext should fail")
	}
}
