package network

import (
	"encoding/json"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	bolt "go.etcd.io/bbolt"
)

var peerBucket = []byte("peers")

// peerRecord is what the actor persists about a peer across restarts: its
// last observed multiaddresses, whether it answered the last liveness probe,
// and a smoothed round-trip latency estimate.
type peerRecord struct {
	Addrs      []string  `json:"addrs"`
	Live       bool      `json:"live"`
	RTTMillis  float64   `json:"rtt_ms"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// peerCache is a bbolt-backed store for peerRecord, keyed by peer ID. The
// actor writes every connected peer's record on each maintenance tick, so
// the records persist across restarts; the actor does not read them back,
// and neither the routing table nor NetworkStats is seeded from them.
type peerCache struct {
	db *bolt.DB
}

func openPeerCache(path string) (*peerCache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(peerBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &peerCache{db: db}, nil
}

func (c *peerCache) Close() error { return c.db.Close() }

func (c *peerCache) put(id peer.ID, rec peerRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(peerBucket).Put([]byte(id), raw)
	})
}

func (c *peerCache) get(id peer.ID) (peerRecord, bool) {
	var rec peerRecord
	var found bool
	_ = c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(peerBucket).Get([]byte(id))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &rec); err == nil {
			found = true
		}
		return nil
	})
	return rec, found
}

// all returns every cached peer record, keyed by peer ID string.
func (c *peerCache) all() map[string]peerRecord {
	out := make(map[string]peerRecord)
	_ = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(peerBucket)
		return b.ForEach(func(k, v []byte) error {
			var rec peerRecord
			if err := json.Unmarshal(v, &rec); err == nil {
				out[string(k)] = rec
			}
			return nil
		})
	})
	return out
}
