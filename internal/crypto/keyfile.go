package crypto

import (
	"os"

	"github.com/ioustamora/datamesh/internal/errors"
)

// LoadOrCreateKeyPair reads a KeyPair from path, or generates and persists a
// fresh one on first run, mirroring the network layer's
// loadOrCreateIdentity: long-term key material is generated once and
// reused across restarts rather than regenerated per process.
func LoadOrCreateKeyPair(path string) (*KeyPair, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		if len(raw) != 2*KeySize {
			return nil, errors.New(errors.KindCryptoFailed, "encryption key file has the wrong length")
		}
		var kp KeyPair
		copy(kp.Public[:], raw[:KeySize])
		copy(kp.Private[:], raw[KeySize:])
		return &kp, nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrap(errors.KindCryptoFailed, err, "reading encryption key file")
	}

	kp, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	raw = make([]byte, 0, 2*KeySize)
	raw = append(raw, kp.Public[:]...)
	raw = append(raw, kp.Private[:]...)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, errors.Wrap(errors.KindCryptoFailed, err, "persisting encryption key file")
	}
	return kp, nil
}
