// Package domain holds the value types shared across the storage core's
// layers: the File record callers see, the Shard unit the erasure and
// network layers exchange, and the Peer attributes the network actor
// observes.
package domain

import "time"

// ShardRole distinguishes a data shard from a parity shard by its ordinal
// position within a file's N = k+m shard set.
type ShardRole int

const (
	RoleData ShardRole = iota
	RoleParity
)

func (r ShardRole) String() string {
	if r == RoleParity {
		return "parity"
	}
	return "data"
}

// File is the caller-facing view of one catalog entry: everything a
// put/get/list/info caller needs without reaching into storage internals.
type File struct {
	Name         string
	FK           string
	OriginalName string
	Size         int64
	UploadedAt   time.Time
	OwnerFP      string
	Health       int
	Tags         []string
}

// PeerInfo is the network actor's observed view of one peer: its stable
// identifier, current addresses, liveness, and round-trip latency.
type PeerInfo struct {
	ID        string
	Addrs     []string
	Live      bool
	RTTMillis float64
}
