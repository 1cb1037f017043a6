// Package network confines all interaction with the libp2p swarm and the
// Kademlia DHT to a single actor task, exposed to the rest of the core
// through a thread-safe request/response handle (Actor). No other package
// may touch the libp2p host or the DHT peer directly.
package network

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/core/routing"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	libp2ptls "github.com/libp2p/go-libp2p/p2p/security/tls"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	"github.com/multiformats/go-multiaddr"

	"github.com/ioustamora/datamesh/internal/config"
)

// buildHost constructs the libp2p host and its Kademlia DHT routing table
// according to cfg. The host always runs in ModeAutoServer: a node with zero
// bootstrap peers still accepts inbound connections and serves DHT queries,
// it simply cannot discover others on its own (spec §6 bootstrap behavior).
func buildHost(ctx context.Context, cfg *config.Config, priv p2pcrypto.PrivKey) (host.Host, *dht.IpfsDHT, error) {
	listenAddrs := make([]multiaddr.Multiaddr, 0, len(cfg.ListenAddrs))
	for _, addr := range cfg.ListenAddrs {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid listen address %q: %w", addr, err)
		}
		listenAddrs = append(listenAddrs, ma)
	}

	cm, err := connmgr.NewConnManager(32, 256)
	if err != nil {
		return nil, nil, fmt.Errorf("constructing connection manager: %w", err)
	}

	var kadDHT *dht.IpfsDHT
	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrs(listenAddrs...),
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.Security(libp2ptls.ID, libp2ptls.New),
		libp2p.Security(noise.ID, noise.New),
		libp2p.ConnectionManager(cm),
		libp2p.EnableHolePunching(),
		libp2p.EnableRelay(),
		libp2p.Routing(func(h host.Host) (routing.PeerRouting, error) {
			var err error
			kadDHT, err = dht.New(ctx, h,
				dht.Mode(dht.ModeAutoServer),
				dht.ProtocolPrefix(protocol.ID(cfg.ProtocolPrefix)),
				dht.NamespacedValidator("datamesh", shardValidator{}),
			)
			return kadDHT, err
		}),
		libp2p.NATPortMap(),
		libp2p.EnableNATService(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("constructing libp2p host: %w", err)
	}
	return h, kadDHT, nil
}
