package network

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"
	log "github.com/sirupsen/logrus"

	"github.com/ioustamora/datamesh/internal/config"
	"github.com/ioustamora/datamesh/internal/errors"
)

// storeProtocolSuffix names the private stream protocol the actor uses for
// explicit Q-of-P replication, since go-libp2p-kad-dht's PutValue always
// replicates to its own fixed closest-peer set and exposes no per-call
// quorum override (spec §9 open question, resolved in favor of doing the Q
// puts by hand rather than trusting the DHT's built-in replication count).
const storeProtocolSuffix = "/store/1.0.0"

// PutOutcome reports how many distinct peers acknowledged a PutRecord.
type PutOutcome struct {
	Responders int
}

// NetworkStats mirrors spec §4.4's NetworkStats response.
type NetworkStats struct {
	Connected        int
	RoutingTableSize int
	AvgRTTMillis     float64
}

// request is the envelope every public Actor method sends down reqCh; resp
// carries back exactly one of a result or an error. This is the Go
// rendering of the single-owner, message-passing DHT peer the spec
// describes: requests run one at a time on Run's goroutine.
type request struct {
	do   func(ctx context.Context, a *Actor) (any, error)
	ctx  context.Context
	resp chan result
}

type result struct {
	val any
	err error
}

// Actor is the sole custodian of the libp2p host and DHT peer. Every
// operation is dispatched through reqCh and executed on the single goroutine
// started by Run, so no two requests use the host and dht at once. Within one
// PutRecord, the store streams to the chosen peers are opened from helper
// goroutines that the request waits for; HostID and Addrs read the host
// directly.
type Actor struct {
	cfg    *config.Config
	host   host.Host
	dht    *dht.IpfsDHT
	cache  *peerCache
	ring   peerRing
	shards *localShardStore

	reqCh chan request

	mu      sync.Mutex
	running bool
}

// NewActor constructs the libp2p host and DHT peer and registers the
// explicit-replication stream handler, but does not start the actor's
// processing loop — call Run for that.
func NewActor(ctx context.Context, cfg *config.Config) (*Actor, error) {
	priv, err := loadOrCreateIdentity(cfg.IdentityKeyPath)
	if err != nil {
		return nil, err
	}

	h, d, err := buildHost(ctx, cfg, priv)
	if err != nil {
		return nil, err
	}

	cache, err := openPeerCache(cfg.PeerCachePath)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("opening peer cache: %w", err)
	}

	a := &Actor{
		cfg:    cfg,
		host:   h,
		dht:    d,
		cache:  cache,
		shards: newLocalShardStore(),
		reqCh:  make(chan request, 64),
	}

	storeProto := protocol.ID(cfg.ProtocolPrefix + storeProtocolSuffix)
	h.SetStreamHandler(storeProto, a.handleStoreStream)

	return a, nil
}

// Run executes the actor's cooperative loop: it multiplexes inbound
// requests, context cancellation, and a periodic maintenance tick that
// refreshes the routing table and persists peer liveness. It returns when
// ctx is cancelled.
func (a *Actor) Run(ctx context.Context) {
	a.mu.Lock()
	a.running = true
	a.mu.Unlock()

	maintenance := time.NewTicker(1 * time.Minute)
	defer maintenance.Stop()

	for {
		select {
		case <-ctx.Done():
			a.mu.Lock()
			a.running = false
			a.mu.Unlock()
			a.host.Close()
			a.cache.Close()
			return
		case req := <-a.reqCh:
			val, err := req.do(req.ctx, a)
			req.resp <- result{val: val, err: err}
		case <-maintenance.C:
			a.runMaintenance(ctx)
		}
	}
}

// call dispatches fn onto the actor's loop and blocks for its result or
// ctx's cancellation, whichever comes first.
func (a *Actor) call(ctx context.Context, fn func(ctx context.Context, a *Actor) (any, error)) (any, error) {
	resp := make(chan result, 1)
	select {
	case a.reqCh <- request{do: fn, ctx: ctx, resp: resp}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Actor) runMaintenance(ctx context.Context) {
	if a.dht != nil {
		if err := a.dht.RefreshRoutingTable(); err != nil {
			log.Debugf("routing table refresh: %v", err)
		}
	}
	for _, p := range a.host.Network().Peers() {
		latency := a.host.Peerstore().LatencyEWMA(p)
		rec := peerRecord{
			Addrs:      addrStrings(a.host.Peerstore().Addrs(p)),
			Live:       true,
			RTTMillis:  float64(latency.Milliseconds()),
			LastSeenAt: time.Now(),
		}
		if err := a.cache.put(p, rec); err != nil {
			log.Debugf("persisting peer record for %s: %v", p, err)
		}
	}
}

func addrStrings(addrs []multiaddr.Multiaddr) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}

// recordKey namespaces a shard key for the "datamesh" DHT record validator.
func recordKey(key []byte) string {
	return "/datamesh/" + hex.EncodeToString(key)
}

// PutRecord stores value under key, requiring at least quorum distinct
// acknowledging peers among those explicitly contacted, plus a best-effort
// publish into the DHT's own replication set as a durability backstop.
func (a *Actor) PutRecord(ctx context.Context, key, value []byte, quorum int) (PutOutcome, error) {
	v, err := a.call(ctx, func(ctx context.Context, a *Actor) (any, error) {
		return a.doPutRecord(ctx, key, value, quorum)
	})
	if err != nil {
		return PutOutcome{}, err
	}
	return v.(PutOutcome), nil
}

func (a *Actor) doPutRecord(ctx context.Context, key, value []byte, quorum int) (PutOutcome, error) {
	connected := a.host.Network().Peers()
	if len(connected) == 0 {
		return PutOutcome{}, errors.New(errors.KindNoPeers, errors.NoPeersHint)
	}
	if quorum > len(connected) {
		quorum = len(connected)
	}

	a.shards.put(key, value)

	targets := a.ring.pick(connected, quorum)

	type ackResult struct {
		ok bool
	}
	acks := make(chan ackResult, len(targets))
	var wg sync.WaitGroup
	for _, p := range targets {
		wg.Add(1)
		go func(p peer.ID) {
			defer wg.Done()
			ok := a.sendStore(ctx, p, key, value)
			acks <- ackResult{ok: ok}
		}(p)
	}
	go func() {
		wg.Wait()
		close(acks)
	}()

	responders := 0
	for ar := range acks {
		if ar.ok {
			responders++
		}
	}

	// Best-effort publish into the DHT's own closest-peer replication set,
	// independent of the explicit quorum above; failure here does not fail
	// the put, since the explicit replication already satisfied the caller's
	// quorum requirement.
	if a.dht != nil {
		if err := a.dht.PutValue(ctx, recordKey(key), value); err != nil {
			log.Debugf("best-effort dht publish for %x: %v", key, err)
		}
	}

	if responders < quorum {
		return PutOutcome{Responders: responders}, errors.New(
			errors.KindInsufficientAcks,
			fmt.Sprintf("got %d acks, wanted %d", responders, quorum),
		)
	}
	return PutOutcome{Responders: responders}, nil
}

// GetRecord retrieves the value stored under key. Reads accept any single
// honest copy (quorum-1 semantics), so it is satisfied by the DHT's native
// GetValue; the quorum parameter is accepted for interface symmetry with
// PutRecord but does not change get behavior.
func (a *Actor) GetRecord(ctx context.Context, key []byte, _ int) ([]byte, error) {
	v, err := a.call(ctx, func(ctx context.Context, a *Actor) (any, error) {
		return a.doGetRecord(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (a *Actor) doGetRecord(ctx context.Context, key []byte) ([]byte, error) {
	if val, ok := a.shards.get(key); ok {
		return val, nil
	}

	if a.dht == nil {
		return nil, errors.New(errors.KindNoPeers, errors.NoPeersHint)
	}
	val, err := a.dht.GetValue(ctx, recordKey(key))
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.KindTimeout, err, "get deadline exceeded")
		}
		return nil, errors.Wrap(errors.KindTransport, err, "dht get failed")
	}
	return val, nil
}

// ConnectedPeers returns the peer IDs the host currently has an open
// connection to.
func (a *Actor) ConnectedPeers(ctx context.Context) ([]peer.ID, error) {
	v, err := a.call(ctx, func(ctx context.Context, a *Actor) (any, error) {
		return a.host.Network().Peers(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]peer.ID), nil
}

// Bootstrap dials every seed and runs the DHT's own bootstrap process.
func (a *Actor) Bootstrap(ctx context.Context, seeds []peer.AddrInfo) error {
	_, err := a.call(ctx, func(ctx context.Context, a *Actor) (any, error) {
		for _, s := range seeds {
			a.host.Peerstore().AddAddrs(s.ID, s.Addrs, peerstore.PermanentAddrTTL)
			if err := a.host.Connect(ctx, s); err != nil {
				log.Warnf("bootstrap dial to %s failed: %v", s.ID, err)
				continue
			}
		}
		if a.dht != nil {
			return nil, a.dht.Bootstrap(ctx)
		}
		return nil, nil
	})
	return err
}

// NetworkStats reports the current connection count, routing table size,
// and average peer latency.
func (a *Actor) NetworkStats(ctx context.Context) (NetworkStats, error) {
	v, err := a.call(ctx, func(ctx context.Context, a *Actor) (any, error) {
		peers := a.host.Network().Peers()
		rtSize := 0
		if a.dht != nil {
			rtSize = a.dht.RoutingTable().Size()
		}
		var total float64
		for _, p := range peers {
			total += float64(a.host.Peerstore().LatencyEWMA(p).Milliseconds())
		}
		avg := 0.0
		if len(peers) > 0 {
			avg = total / float64(len(peers))
		}
		return NetworkStats{Connected: len(peers), RoutingTableSize: rtSize, AvgRTTMillis: avg}, nil
	})
	if err != nil {
		return NetworkStats{}, err
	}
	return v.(NetworkStats), nil
}

// HostID returns the actor's own peer ID. Safe to call without going through
// reqCh since host identity never changes after construction.
func (a *Actor) HostID() peer.ID { return a.host.ID() }

// Addrs returns the actor's own listen addresses.
func (a *Actor) Addrs() []multiaddr.Multiaddr { return a.host.Addrs() }
