// Package crypto provides the whole-file authenticated encryption and
// content-addressing primitives the storage core is built on: every file is
// encrypted once, before erasure coding, so that parity shards are
// indistinguishable from data shards and no subset smaller than k leaks
// anything about the plaintext beyond its padded length.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/nacl/box"

	"github.com/ioustamora/datamesh/internal/errors"
)

// KeySize is the length in bytes of a Curve25519 public or private key.
const KeySize = 32

// nonceSize is the length of the random nonce Encrypt writes between the
// ephemeral public key and the sealed box (which itself adds box.Overhead,
// the Poly1305 tag).
const nonceSize = 24

// PublicKey and PrivateKey are Curve25519 keys used for box encryption.
type PublicKey [KeySize]byte
type PrivateKey [KeySize]byte

// KeyPair is a recipient's encryption keypair, generated once and persisted
// to disk with owner-only permissions by the caller.
type KeyPair struct {
	Public  PublicKey
	Private PrivateKey
}

// GenerateKeyPair creates a fresh Curve25519 keypair for whole-file encryption.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(errors.KindCryptoFailed, err, "generating encryption keypair")
	}
	return &KeyPair{Public: PublicKey(*pub), Private: PrivateKey(*priv)}, nil
}

// Encrypt seals plaintext for recipientPub using a fresh ephemeral keypair
// and a fresh random nonce on every call, so that identical plaintexts
// encrypted twice yield distinct ciphertexts (spec.md §8 invariant 3).
//
// The wire format is: ephemeral public key (32 bytes) || nonce (24 bytes) ||
// sealed box. The ephemeral key lets Decrypt recover the shared secret
// without the sender needing a long-term keypair of its own.
func Encrypt(plaintext []byte, recipientPub PublicKey) ([]byte, error) {
	ephPub, ephPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(errors.KindCryptoFailed, err, "generating ephemeral keypair")
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, errors.Wrap(errors.KindCryptoFailed, err, "generating nonce")
	}

	recip := [KeySize]byte(recipientPub)
	out := make([]byte, 0, KeySize+nonceSize+len(plaintext)+box.Overhead)
	out = append(out, ephPub[:]...)
	out = append(out, nonce[:]...)
	out = box.Seal(out, plaintext, &nonce, &recip, ephPriv)
	return out, nil
}

// Decrypt opens a ciphertext produced by Encrypt using the recipient's
// private key. It fails closed: any tamper, truncation, or wrong-key
// condition returns a KindAuthFailure error and never partial plaintext.
func Decrypt(ciphertext []byte, recipientPriv PrivateKey) ([]byte, error) {
	if len(ciphertext) < KeySize+nonceSize {
		return nil, errors.New(errors.KindAuthFailure, "ciphertext truncated")
	}

	var ephPub [KeySize]byte
	copy(ephPub[:], ciphertext[:KeySize])

	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[KeySize:KeySize+nonceSize])

	sealed := ciphertext[KeySize+nonceSize:]
	priv := [KeySize]byte(recipientPriv)

	plaintext, ok := box.Open(nil, sealed, &nonce, &ephPub, &priv)
	if !ok {
		return nil, errors.New(errors.KindAuthFailure, "decryption failed authentication")
	}
	return plaintext, nil
}

// FileKey is the 256-bit content address of an encrypted file: the SHA-256
// hash of its ciphertext (spec.md §3 "File key").
type FileKey [sha256.Size]byte

// String renders the file key as lowercase hex.
func (k FileKey) String() string {
	return fmt.Sprintf("%x", [sha256.Size]byte(k))
}

// ContentHash computes the deterministic, collision-resistant content
// address of bytes.
func ContentHash(data []byte) FileKey {
	return FileKey(sha256.Sum256(data))
}

// ShardKey derives the DHT key under which shard i of file fk is stored:
// H(FK || i), as spec.md §3 requires.
func ShardKey(fk FileKey, index int) [sha256.Size]byte {
	buf := make([]byte, 0, sha256.Size+4)
	buf = append(buf, fk[:]...)
	buf = append(buf,
		byte(index>>24), byte(index>>16), byte(index>>8), byte(index))
	return sha256.Sum256(buf)
}
