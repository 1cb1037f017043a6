// Package orchestrator implements the put/get state machines that sit
// between a caller and the crypto, erasure, catalog, and network layers: it
// is "the hard part" spec.md §4.5 names — encrypting and sharding a file,
// dispatching shard puts under an adaptive quorum with retries, committing
// to the catalog, and symmetrically fetching with early termination,
// reconstructing, and decrypting on the way out.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/ioustamora/datamesh/internal/adminrpc"
	"github.com/ioustamora/datamesh/internal/catalog"
	"github.com/ioustamora/datamesh/internal/config"
	"github.com/ioustamora/datamesh/internal/crypto"
	"github.com/ioustamora/datamesh/internal/domain"
	"github.com/ioustamora/datamesh/internal/erasure"
	"github.com/ioustamora/datamesh/internal/errors"
	"github.com/ioustamora/datamesh/internal/metrics"
	"github.com/ioustamora/datamesh/internal/network"
)

// NetworkActor is the subset of *network.Actor the orchestrator depends on.
// Following the teacher's MetadataRepository/Placer pattern of depending on
// a narrow interface rather than a concrete type, this lets orchestrator
// tests substitute an in-memory fake instead of standing up a real libp2p
// host and DHT.
type NetworkActor interface {
	ConnectedPeers(ctx context.Context) ([]peer.ID, error)
	PutRecord(ctx context.Context, key, value []byte, quorum int) (network.PutOutcome, error)
	GetRecord(ctx context.Context, key []byte, quorum int) ([]byte, error)
	Bootstrap(ctx context.Context, seeds []peer.AddrInfo) error
	NetworkStats(ctx context.Context) (network.NetworkStats, error)
}

// Orchestrator composes the storage core's four layers into the put/get/
// list/info/delete/repair operations a caller actually invokes. All of its
// fields are supplied at construction and never reassigned, per spec.md
// §9's "configuration as value objects" design note.
type Orchestrator struct {
	cfg     *config.Config
	actor   NetworkActor
	cat     *catalog.Catalog
	keys    *crypto.KeyPair
	metrics *metrics.Registry // may be nil; every use is nil-checked
}

// New constructs an Orchestrator. reg may be nil if metrics are disabled.
func New(cfg *config.Config, actor NetworkActor, cat *catalog.Catalog, keys *crypto.KeyPair, reg *metrics.Registry) *Orchestrator {
	return &Orchestrator{cfg: cfg, actor: actor, cat: cat, keys: keys, metrics: reg}
}

// ownerFingerprint derives a short, stable identifier for the encrypting
// keypair's public half, recorded on each catalog row as owner_fp.
func ownerFingerprint(pub crypto.PublicKey) string {
	sum := sha256.Sum256(pub[:])
	return fmt.Sprintf("%x", sum[:8])
}

// Put encrypts plaintext, erasure-codes the ciphertext, stores every
// resulting shard under an adaptive quorum, and commits a catalog record.
// It implements spec.md §4.5's Start→Encrypted→Sharded→QuorumChosen→
// Storing→Committed state machine.
func (o *Orchestrator) Put(ctx context.Context, name string, plaintext []byte, tags []string) (domain.File, error) {
	start := time.Now()

	outcome := "error"
	defer func() {
		if o.metrics != nil {
			o.metrics.PutsTotal.WithLabelValues(outcome).Inc()
			o.metrics.PutDuration.Observe(time.Since(start).Seconds())
		}
	}()

	// Start -> Encrypted
	ciphertext, err := crypto.Encrypt(plaintext, o.keys.Public)
	if err != nil {
		return domain.File{}, err
	}
	fk := crypto.ContentHash(ciphertext)

	// Encrypted -> Sharded
	shards, layout, err := erasure.Encode(ciphertext, o.cfg.Erasure.DataShards, o.cfg.Erasure.ParityShards)
	if err != nil {
		return domain.File{}, err
	}
	total := layout.TotalShards()

	// Sharded -> QuorumChosen
	connected, err := o.actor.ConnectedPeers(ctx)
	if err != nil {
		return domain.File{}, err
	}
	if len(connected) == 0 {
		return domain.File{}, errors.New(errors.KindNoPeers, errors.NoPeersHint)
	}
	quorum := adaptiveQuorum(o.cfg.Quorum, len(connected))

	// QuorumChosen -> Storing: all N shard puts run concurrently, each with
	// its own retry budget; there is no ordering among acknowledgements.
	log.Debugf("put %s: dispatching %d shards at quorum %d across %d peers", name, total, quorum, len(connected))

	var wg sync.WaitGroup
	failedCh := make(chan int, total)
	for _, sh := range shards {
		wg.Add(1)
		go func(sh erasure.Shard) {
			defer wg.Done()
			key := crypto.ShardKey(fk, sh.Index)
			err := retryBackoff(ctx, o.cfg.Retry, func() error {
				_, err := o.actor.PutRecord(ctx, key[:], sh.Data, quorum)
				return err
			})
			if o.metrics != nil {
				if err != nil {
					o.metrics.ShardPutsTotal.WithLabelValues("failed").Inc()
				} else {
					o.metrics.ShardPutsTotal.WithLabelValues("ok").Inc()
				}
			}
			if err != nil {
				log.Warnf("put %s: shard %d exhausted retries: %v", name, sh.Index, err)
				failedCh <- sh.Index
			}
		}(sh)
	}
	wg.Wait()
	close(failedCh)

	failed := 0
	for range failedCh {
		failed++
	}

	// Storing -> Committed | PartialFailure
	if failed > layout.ParityShards {
		return domain.File{}, errors.New(errors.KindUnrecoverable,
			fmt.Sprintf("%d of %d shards failed, exceeding parity budget %d", failed, total, layout.ParityShards))
	}

	health := 100 * (total - failed) / total

	rec := catalog.Record{
		Name:         name,
		FK:           fk.String(),
		OriginalName: name,
		Size:         int64(len(plaintext)),
		UploadedAt:   time.Now(),
		OwnerFP:      ownerFingerprint(o.keys.Public),
		Health:       health,
		Tags:         tags,
		DataShards:   layout.DataShards,
		ParityShards: layout.ParityShards,
		ShardSize:    int64(layout.ShardSize),
		CipherSize:   layout.OriginalSize,
	}

	// Committed -> Done | CatalogFailed (shards already durable in the DHT;
	// a catalog failure here is recoverable by retrying Store, not by
	// re-running the whole put).
	storedName, _, err := o.cat.StoreWithSuffix(rec, 10)
	if err != nil {
		return domain.File{}, err
	}

	outcome = "ok"
	if failed > 0 {
		outcome = "partial"
	}
	return domain.File{
		Name: storedName, FK: rec.FK, OriginalName: rec.OriginalName, Size: rec.Size,
		UploadedAt: rec.UploadedAt, OwnerFP: rec.OwnerFP, Health: rec.Health, Tags: rec.Tags,
	}, nil
}

// Get resolves name to its file key via the catalog, fetches shards with
// early termination once k are in hand, reconstructs, and decrypts.
func (o *Orchestrator) Get(ctx context.Context, name string) ([]byte, domain.File, error) {
	start := time.Now()
	outcome := "error"
	defer func() {
		if o.metrics != nil {
			o.metrics.GetsTotal.WithLabelValues(outcome).Inc()
			o.metrics.GetDuration.Observe(time.Since(start).Seconds())
		}
	}()

	rec, err := o.cat.LookupByName(name)
	if err != nil {
		return nil, domain.File{}, err
	}

	fk, err := parseFileKey(rec.FK)
	if err != nil {
		return nil, domain.File{}, err
	}

	layout := erasure.Layout{
		DataShards:   rec.DataShards,
		ParityShards: rec.ParityShards,
		ShardSize:    int(rec.ShardSize),
		OriginalSize: rec.CipherSize,
	}

	shards, reachable, err := o.fetchShards(ctx, fk, layout)
	if o.metrics != nil {
		o.metrics.ShardGetsTotal.WithLabelValues("ok").Add(float64(reachable))
		o.metrics.ShardGetsTotal.WithLabelValues("missing").Add(float64(layout.TotalShards() - reachable))
	}
	if err != nil {
		return nil, domain.File{}, err
	}

	ciphertext, err := erasure.Decode(shards, layout)
	if err != nil {
		return nil, domain.File{}, err
	}

	plaintext, err := crypto.Decrypt(ciphertext, o.keys.Private)
	if err != nil {
		return nil, domain.File{}, err
	}

	health := 100 * reachable / layout.TotalShards()
	if health != rec.Health {
		if err := o.cat.UpdateHealth(rec.Name, health); err != nil {
			log.Debugf("updating health for %s: %v", rec.Name, err)
		}
	}

	outcome = "ok"
	return plaintext, domain.File{
		Name: rec.Name, FK: rec.FK, OriginalName: rec.OriginalName, Size: rec.Size,
		UploadedAt: rec.UploadedAt, OwnerFP: rec.OwnerFP, Health: health, Tags: rec.Tags,
	}, nil
}

// Delete removes name from the catalog. It never reaches into the DHT:
// shard garbage collection is left to the DHT's own record expiry, per
// spec.md §9's deletion-propagation open question.
func (o *Orchestrator) Delete(ctx context.Context, name string) error {
	return o.cat.Delete(name)
}

// List returns every catalog entry, optionally filtered by tag.
func (o *Orchestrator) List(ctx context.Context, tag string) ([]domain.File, error) {
	recs, err := o.cat.List(tag)
	if err != nil {
		return nil, err
	}
	return recordsToFiles(recs), nil
}

// Info returns the single catalog entry filed under name.
func (o *Orchestrator) Info(ctx context.Context, name string) (domain.File, error) {
	rec, err := o.cat.LookupByName(name)
	if err != nil {
		return domain.File{}, err
	}
	return recordToFile(rec), nil
}

// parseFileKey decodes a catalog record's hex-encoded file key back into a
// crypto.FileKey, failing with KindCatalogCorrupt if the stored value is
// not a well-formed 32-byte hex string.
func parseFileKey(hexKey string) (crypto.FileKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return crypto.FileKey{}, errors.Wrap(errors.KindCatalogCorrupt, err, "decoding stored file key")
	}
	if len(raw) != len(crypto.FileKey{}) {
		return crypto.FileKey{}, errors.New(errors.KindCatalogCorrupt, "stored file key has the wrong length")
	}
	var fk crypto.FileKey
	copy(fk[:], raw)
	return fk, nil
}

func recordToFile(rec catalog.Record) domain.File {
	return domain.File{
		Name: rec.Name, FK: rec.FK, OriginalName: rec.OriginalName, Size: rec.Size,
		UploadedAt: rec.UploadedAt, OwnerFP: rec.OwnerFP, Health: rec.Health, Tags: rec.Tags,
	}
}

func recordsToFiles(recs []catalog.Record) []domain.File {
	out := make([]domain.File, len(recs))
	for i, rec := range recs {
		out[i] = recordToFile(rec)
	}
	return out
}

// Bootstrap dials the given seed multiaddresses and joins the DHT,
// satisfying the adminrpc.Server interface.
func (o *Orchestrator) Bootstrap(ctx context.Context, req *adminrpc.BootstrapRequest) (*adminrpc.BootstrapResponse, error) {
	seeds, err := network.ParseAddrInfos(req.Seeds)
	if err != nil {
		return nil, err
	}
	if err := o.actor.Bootstrap(ctx, seeds); err != nil {
		return nil, err
	}
	return &adminrpc.BootstrapResponse{}, nil
}

// Stats reports the network actor's connection/routing state plus the
// catalog's entry count, satisfying the adminrpc.Server interface.
func (o *Orchestrator) Stats(ctx context.Context, req *adminrpc.StatsRequest) (*adminrpc.StatsResponse, error) {
	ns, err := o.actor.NetworkStats(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := o.cat.List("")
	if err != nil {
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.ConnectedPeers.Set(float64(ns.Connected))
		o.metrics.RoutingTableSize.Set(float64(ns.RoutingTableSize))
		o.metrics.CatalogEntries.Set(float64(len(entries)))
	}
	return &adminrpc.StatsResponse{
		ConnectedPeers:   int32(ns.Connected),
		RoutingTableSize: int32(ns.RoutingTableSize),
		AvgRTTMillis:     ns.AvgRTTMillis,
		CatalogEntries:   int32(len(entries)),
	}, nil
}
