package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/ioustamora/datamesh/internal/catalog"
	"github.com/ioustamora/datamesh/internal/config"
	"github.com/ioustamora/datamesh/internal/crypto"
	"github.com/ioustamora/datamesh/internal/errors"
	"github.com/ioustamora/datamesh/internal/network"
)

// fakeActor is an in-memory stand-in for *network.Actor: a plain map keyed
// by shard key, so tests can simulate peer churn by deleting entries
// without standing up a real libp2p host and DHT.
type fakeActor struct {
	mu    sync.Mutex
	store map[string][]byte
	peers []peer.ID
}

func newFakeActor(peerCount int) *fakeActor {
	peers := make([]peer.ID, peerCount)
	for i := range peers {
		peers[i] = peer.ID(fmt.Sprintf("peer-%d", i))
	}
	return &fakeActor{store: make(map[string][]byte), peers: peers}
}

func (f *fakeActor) ConnectedPeers(ctx context.Context) ([]peer.ID, error) {
	return f.peers, nil
}

func (f *fakeActor) PutRecord(ctx context.Context, key, value []byte, quorum int) (network.PutOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[string(key)] = append([]byte(nil), value...)
	return network.PutOutcome{Responders: quorum}, nil
}

func (f *fakeActor) GetRecord(ctx context.Context, key []byte, quorum int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.store[string(key)]
	if !ok {
		return nil, errors.New(errors.KindTimeout, "no such record")
	}
	return v, nil
}

func (f *fakeActor) Bootstrap(ctx context.Context, seeds []peer.AddrInfo) error { return nil }

func (f *fakeActor) NetworkStats(ctx context.Context) (network.NetworkStats, error) {
	return network.NetworkStats{Connected: len(f.peers)}, nil
}

func (f *fakeActor) delete(fk crypto.FileKey, index int) {
	key := crypto.ShardKey(fk, index)
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.store, string(key))
}

func testConfig() *config.Config {
	return &config.Config{
		Erasure:         config.ErasureConfig{DataShards: 4, ParityShards: 2},
		Quorum:          config.QuorumConfig{SmallNetworkThreshold: 5, LargeNetworkFraction: 0.25},
		Retry:           config.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, BackoffFactor: 2.0},
		RepairThreshold: 75,
	}
}

func newTestOrchestrator(t *testing.T, peerCount int) (*Orchestrator, *fakeActor, *catalog.Catalog) {
	t.Helper()
	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("opening catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	keys, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generating keypair: %v", err)
	}

	actor := newFakeActor(peerCount)
	return New(testConfig(), actor, cat, keys, nil), actor, cat
}

func TestPutAndGetRoundTrip(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, 3)
	ctx := context.Background()

	file, err := o.Put(ctx, "greeting", []byte("hello, mesh"), []string{"demo"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if file.Health != 100 {
		t.Fatalf("expected health 100, got %d", file.Health)
	}

	plaintext, info, err := o.Get(ctx, "greeting")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(plaintext) != "hello, mesh" {
		t.Fatalf("unexpected plaintext: %q", plaintext)
	}
	if info.Name != "greeting" {
		t.Fatalf("unexpected name: %q", info.Name)
	}
}

func TestPutFailsWithNoPeers(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, 0)
	_, err := o.Put(context.Background(), "f", []byte("data"), nil)
	if !errors.Is(err, errors.KindNoPeers) {
		t.Fatalf("expected KindNoPeers, got %v", err)
	}
}

func TestPutAndGetRoundTripEmptyInput(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, 3)
	ctx := context.Background()

	if _, err := o.Put(ctx, "empty", []byte{}, nil); err != nil {
		t.Fatalf("Put with empty plaintext: %v", err)
	}

	plaintext, _, err := o.Get(ctx, "empty")
	if err != nil {
		t.Fatalf("Get after empty Put: %v", err)
	}
	if len(plaintext) != 0 {
		t.Fatalf("expected empty plaintext round trip, got %q", plaintext)
	}
}

func TestGetReconstructsFromParityAfterLostDataShards(t *testing.T) {
	o, actor, _ := newTestOrchestrator(t, 3)
	ctx := context.Background()

	file, err := o.Put(ctx, "f", []byte("some reasonably sized payload for sharding"), nil)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	fk, err := parseFileKey(file.FK)
	if err != nil {
		t.Fatalf("parseFileKey: %v", err)
	}

	// k=4, m=2: losing 2 data shards must still allow reconstruction from
	// the two parity shards.
	actor.delete(fk, 0)
	actor.delete(fk, 1)

	plaintext, _, err := o.Get(ctx, "f")
	if err != nil {
		t.Fatalf("Get after losing 2 data shards: %v", err)
	}
	if string(plaintext) != "some reasonably sized payload for sharding" {
		t.Fatalf("unexpected reconstructed plaintext: %q", plaintext)
	}
}

func TestGetFailsUnrecoverableBeyondParityBudget(t *testing.T) {
	o, actor, _ := newTestOrchestrator(t, 3)
	ctx := context.Background()

	file, err := o.Put(ctx, "f", []byte("some reasonably sized payload for sharding"), nil)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	fk, err := parseFileKey(file.FK)
	if err != nil {
		t.Fatalf("parseFileKey: %v", err)
	}

	// Losing 3 of 6 shards drops below k=4 data shards reachable.
	actor.delete(fk, 3)
	actor.delete(fk, 4)
	actor.delete(fk, 5)

	_, _, err = o.Get(ctx, "f")
	if !errors.Is(err, errors.KindUnrecoverable) {
		t.Fatalf("expected KindUnrecoverable, got %v", err)
	}
}

func TestRepairRegeneratesMissingShards(t *testing.T) {
	o, actor, _ := newTestOrchestrator(t, 3)
	ctx := context.Background()

	file, err := o.Put(ctx, "f", []byte("payload that will lose a shard and get repaired"), nil)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	fk, err := parseFileKey(file.FK)
	if err != nil {
		t.Fatalf("parseFileKey: %v", err)
	}

	actor.delete(fk, 5)

	if err := o.Repair(ctx, "f"); err != nil {
		t.Fatalf("Repair: %v", err)
	}

	key := crypto.ShardKey(fk, 5)
	actor.mu.Lock()
	_, ok := actor.store[string(key[:])]
	actor.mu.Unlock()
	if !ok {
		t.Fatalf("expected shard 5 to be republished after repair")
	}

	info, err := o.Info(ctx, "f")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Health != 100 {
		t.Fatalf("expected health 100 after repair, got %d", info.Health)
	}
}

func TestListAndDelete(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, 3)
	ctx := context.Background()

	if _, err := o.Put(ctx, "a", []byte("aaaa"), []string{"x"}); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	if _, err := o.Put(ctx, "b", []byte("bbbb"), nil); err != nil {
		t.Fatalf("Put b: %v", err)
	}

	all, err := o.List(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 files, got %d", len(all))
	}

	if err := o.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	remaining, err := o.List(ctx, "")
	if err != nil {
		t.Fatalf("List after delete: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Name != "b" {
		t.Fatalf("unexpected remaining files: %+v", remaining)
	}
}
