package crypto

import (
	"path/filepath"
	"testing"
)

func TestLoadOrCreateKeyPairPersistsAcrossCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "encryption.key")

	first, err := LoadOrCreateKeyPair(path)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}

	second, err := LoadOrCreateKeyPair(path)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}

	if first.Public != second.Public || first.Private != second.Private {
		t.Fatalf("expected persisted keypair to be reused, got different keys")
	}
}

func TestLoadOrCreateKeyPairRoundTripsThroughEncryption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "encryption.key")
	kp, err := LoadOrCreateKeyPair(path)
	if err != nil {
		t.Fatalf("LoadOrCreateKeyPair: %v", err)
	}

	ciphertext, err := Encrypt([]byte("roundtrip"), kp.Public)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	plaintext, err := Decrypt(ciphertext, kp.Private)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(plaintext) != "roundtrip" {
		t.Fatalf("unexpected plaintext: %q", plaintext)
	}
}
