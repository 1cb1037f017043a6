package network

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/ioustamora/datamesh/internal/errors"
)

// ParseAddrInfos parses a list of full peer multiaddresses (each carrying a
// trailing /p2p/<peer-id> component, e.g.
// "/ip4/203.0.113.7/tcp/4001/p2p/QmPeerID...") into libp2p AddrInfo values
// suitable for Actor.Bootstrap.
func ParseAddrInfos(addrs []string) ([]peer.AddrInfo, error) {
	out := make([]peer.AddrInfo, 0, len(addrs))
	for _, raw := range addrs {
		maddr, err := multiaddr.NewMultiaddr(raw)
		if err != nil {
			return nil, errors.Wrap(errors.KindTransport, err, fmt.Sprintf("parsing bootstrap address %q", raw))
		}
		info, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			return nil, errors.Wrap(errors.KindTransport, err, fmt.Sprintf("resolving peer info from %q", raw))
		}
		out = append(out, *info)
	}
	return out, nil
}
