package network

import (
	"crypto/rand"
	"fmt"
	"os"

	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
)

// loadOrCreateIdentity reads the Ed25519 transport keypair at path, or
// generates and persists a fresh one with owner-only permissions if the file
// does not exist (spec §6 "one long-term transport keypair ... with
// owner-only permissions").
func loadOrCreateIdentity(path string) (p2pcrypto.PrivKey, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		priv, err := p2pcrypto.UnmarshalPrivateKey(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing identity key at %s: %w", path, err)
		}
		return priv, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading identity key at %s: %w", path, err)
	}

	priv, _, err := p2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating identity key: %w", err)
	}

	raw, err = p2pcrypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshalling identity key: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, fmt.Errorf("persisting identity key at %s: %w", path, err)
	}
	return priv, nil
}
