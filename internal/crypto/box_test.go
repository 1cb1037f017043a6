package crypto

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	ciphertext, err := Encrypt(plaintext, kp.Public)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	got, err := Decrypt(ciphertext, kp.Private)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	plaintext := []byte("same plaintext twice")
	c1, err := Encrypt(plaintext, kp.Public)
	if err != nil {
		t.Fatalf("Encrypt 1: %v", err)
	}
	c2, err := Encrypt(plaintext, kp.Public)
	if err != nil {
		t.Fatalf("Encrypt 2: %v", err)
	}
	if bytes.Equal(c1, c2) {
		t.Fatal("two encryptions of the same plaintext produced identical ciphertext")
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	kp1, _ := GenerateKeyPair()
	kp2, _ := GenerateKeyPair()

	ciphertext, err := Encrypt([]byte("secret"), kp1.Public)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if _, err := Decrypt(ciphertext, kp2.Private); err == nil {
		t.Fatal("expected decryption with wrong key to fail")
	}
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	kp, _ := GenerateKeyPair()
	ciphertext, err := Encrypt([]byte("secret payload"), kp.Public)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	tampered := append([]byte(nil), ciphertext...)
	tampered[len(tampered)-1] ^= 0xFF

	if _, err := Decrypt(tampered, kp.Private); err == nil {
		t.Fatal("expected decryption of tampered ciphertext to fail")
	}
}

func TestDecryptTruncatedFails(t *testing.T) {
	kp, _ := GenerateKeyPair()
	if _, err := Decrypt([]byte("short"), kp.Private); err == nil {
		t.Fatal("expected decryption of truncated ciphertext to fail")
	}
}

func TestContentHashDeterministic(t *testing.T) {
	data := []byte("ciphertext bytes")
	h1 := ContentHash(data)
	h2 := ContentHash(data)
	if h1 != h2 {
		t.Fatal("ContentHash is not deterministic")
	}

	other := ContentHash([]byte("different bytes"))
	if h1 == other {
		t.Fatal("ContentHash collided on different inputs")
	}
}

func TestShardKeyDependsOnIndex(t *testing.T) {
	fk := ContentHash([]byte("a file's ciphertext"))
	k0 := ShardKey(fk, 0)
	k1 := ShardKey(fk, 1)
	if k0 == k1 {
		t.Fatal("ShardKey produced the same key for different shard indices")
	}
}

func BenchmarkEncrypt(b *testing.B) {
	kp, err := GenerateKeyPair()
	if err != nil {
		b.Fatalf("GenerateKeyPair: %v", err)
	}
	plaintext := bytes.Repeat([]byte("datamesh benchmark payload "), 40000) // ~1.1MB

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Encrypt(plaintext, kp.Public); err != nil {
			b.Fatalf("Encrypt: %v", err)
		}
	}
}

func BenchmarkDecrypt(b *testing.B) {
	kp, err := GenerateKeyPair()
	if err != nil {
		b.Fatalf("GenerateKeyPair: %v", err)
	}
	plaintext := bytes.Repeat([]byte("datamesh benchmark payload "), 40000)
	ciphertext, err := Encrypt(plaintext, kp.Public)
	if err != nil {
		b.Fatalf("Encrypt: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Decrypt(ciphertext, kp.Private); err != nil {
			b.Fatalf("Decrypt: %v", err)
		}
	}
}
