package network

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

func TestPeerCachePutGet(t *testing.T) {
	dir := t.TempDir()
	c, err := openPeerCache(filepath.Join(dir, "peers.bolt"))
	if err != nil {
		t.Fatalf("openPeerCache: %v", err)
	}
	defer c.Close()

	id := peer.ID("test-peer")
	rec := peerRecord{
		Addrs:      []string{"/ip4/127.0.0.1/tcp/4001"},
		Live:       true,
		RTTMillis:  42.5,
		LastSeenAt: time.Now().Truncate(time.Second),
	}
	if err := c.put(id, rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok := c.get(id)
	if !ok {
		t.Fatal("expected cached record to be found")
	}
	if got.RTTMillis != rec.RTTMillis || !got.Live {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestPeerCacheGetMissing(t *testing.T) {
	dir := t.TempDir()
	c, err := openPeerCache(filepath.Join(dir, "peers.bolt"))
	if err != nil {
		t.Fatalf("openPeerCache: %v", err)
	}
	defer c.Close()

	if _, ok := c.get(peer.ID("nobody")); ok {
		t.Fatal("expected miss for unknown peer")
	}
}

func TestPeerCacheAll(t *testing.T) {
	dir := t.TempDir()
	c, err := openPeerCache(filepath.Join(dir, "peers.bolt"))
	if err != nil {
		t.Fatalf("openPeerCache: %v", err)
	}
	defer c.Close()

	_ = c.put(peer.ID("a"), peerRecord{Live: true})
	_ = c.put(peer.ID("b"), peerRecord{Live: false})

	all := c.all()
	if len(all) != 2 {
		t.Fatalf("expected 2 cached peers, got %d", len(all))
	}
}
