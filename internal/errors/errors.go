// Package errors defines the closed set of error kinds the storage core can
// return to a caller, grouped by what the caller can do about them.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an Error so callers can branch on recoverability without
// string matching.
type Kind int

const (
	// KindTimeout means a DHT request did not complete within its deadline. Retryable.
	KindTimeout Kind = iota
	// KindNoPeers means no peers were connected when a request needed one. Retryable after bootstrap.
	KindNoPeers
	// KindInsufficientAcks means a put got fewer acking peers than the computed quorum. Retryable.
	KindInsufficientAcks
	// KindRecordTooLarge means a shard exceeded the DHT's record size limit. Retryable after re-sharding.
	KindRecordTooLarge
	// KindTransport means the underlying swarm reported a connection-level failure. Retryable.
	KindTransport
	// KindPartialStore means the put committed to the catalog with failed_shards <= m. Degraded, not fatal.
	KindPartialStore
	// KindUnrecoverable means fewer than k shards were available to reconstruct a file. Terminal for this get.
	KindUnrecoverable
	// KindAuthFailure means decryption failed authentication (tamper, truncation, or wrong key).
	KindAuthFailure
	// KindNameConflict means a catalog name is already taken (Store) or no free suffixed name was found (StoreWithSuffix).
	KindNameConflict
	// KindEncodeFailed means the erasure layer could not encode a ciphertext. Fatal.
	KindEncodeFailed
	// KindCryptoFailed means encryption itself failed (not an auth failure on decrypt). Fatal.
	KindCryptoFailed
	// KindCatalogCorrupt means the local catalog is unreadable or inconsistent. Fatal, needs operator attention.
	KindCatalogCorrupt
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "Timeout"
	case KindNoPeers:
		return "NoPeers"
	case KindInsufficientAcks:
		return "InsufficientAcks"
	case KindRecordTooLarge:
		return "RecordTooLarge"
	case KindTransport:
		return "Transport"
	case KindPartialStore:
		return "PartialStore"
	case KindUnrecoverable:
		return "Unrecoverable"
	case KindAuthFailure:
		return "AuthFailure"
	case KindNameConflict:
		return "NameConflict"
	case KindEncodeFailed:
		return "EncodeFailed"
	case KindCryptoFailed:
		return "CryptoFailed"
	case KindCatalogCorrupt:
		return "CatalogCorrupt"
	default:
		return "Unknown"
	}
}

// Retryable reports whether a caller can reasonably retry the same operation,
// possibly after bootstrapping more peers.
func (k Kind) Retryable() bool {
	switch k {
	case KindTimeout, KindNoPeers, KindInsufficientAcks, KindRecordTooLarge, KindTransport:
		return true
	default:
		return false
	}
}

// Error wraps a Kind with an underlying cause and one actionable hint.
type Error struct {
	Kind  Kind
	Hint  string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v (%s)", e.Kind, e.Cause, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Hint)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with a hint but no wrapped cause.
func New(kind Kind, hint string) *Error {
	return &Error{Kind: kind, Hint: hint}
}

// Wrap builds an Error around an existing cause.
func Wrap(kind Kind, cause error, hint string) *Error {
	return &Error{Kind: kind, Hint: hint, Cause: cause}
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindTransport for
// unclassified errors so callers never have to nil-check a Kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

var (
	// ErrEmptyName is returned when a catalog operation is given an empty name.
	ErrEmptyName = errors.New("name must not be empty")
	// ErrNotFound is returned by catalog lookups that find no matching row.
	ErrNotFound = errors.New("no matching record")
)

// NoPeersHint is the actionable hint attached to a KindNoPeers error.
const NoPeersHint = "no peers connected — try bootstrap"

// InsufficientShardsHint is the hint attached to a get that could not reach quorum k.
const InsufficientShardsHint = "fewer than k shards were reachable — the file may be permanently lost or its shards have expired from the DHT"
