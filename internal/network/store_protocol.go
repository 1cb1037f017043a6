package network

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	log "github.com/sirupsen/logrus"
)

// storeStreamTimeout bounds how long a single explicit-replication stream
// may take before the actor gives up on that peer.
const storeStreamTimeout = 10 * time.Second

// storeRequest is the wire message for the explicit-replication protocol:
// a flat length-prefixed (key, value) pair. No framing library is needed at
// this size, so it is hand-rolled rather than reached for protobuf, matching
// the hand-registered JSON codec used for the admin RPC surface.
type storeRequest struct {
	Key   []byte
	Value []byte
}

func writeStoreRequest(w io.Writer, req storeRequest) error {
	if err := writeLenPrefixed(w, req.Key); err != nil {
		return err
	}
	return writeLenPrefixed(w, req.Value)
}

func readStoreRequest(r io.Reader) (storeRequest, error) {
	key, err := readLenPrefixed(r)
	if err != nil {
		return storeRequest{}, err
	}
	value, err := readLenPrefixed(r)
	if err != nil {
		return storeRequest{}, err
	}
	return storeRequest{Key: key, Value: value}, nil
}

func writeLenPrefixed(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readLenPrefixed(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// localShardStore holds shards this node has put itself or accepted over
// the store protocol. GetRecord consults it before querying the DHT. Only
// this node's own GetRecord reads it: the store protocol accepts stores
// and has no request type for fetching a shard back.
type localShardStore struct {
	mu    sync.RWMutex
	byKey map[string][]byte
}

func newLocalShardStore() *localShardStore {
	return &localShardStore{byKey: make(map[string][]byte)}
}

func (s *localShardStore) put(key, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[string(key)] = value
}

func (s *localShardStore) get(key []byte) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byKey[string(key)]
	return v, ok
}

// handleStoreStream serves an inbound explicit-replication request: it reads
// one (key, value) pair, persists it locally, and writes back a single ack
// byte. One request per stream; the caller closes the stream after reading
// the ack.
func (a *Actor) handleStoreStream(s network.Stream) {
	defer s.Close()
	s.SetDeadline(time.Now().Add(storeStreamTimeout))

	req, err := readStoreRequest(s)
	if err != nil {
		log.Debugf("store stream from %s: reading request: %v", s.Conn().RemotePeer(), err)
		return
	}

	a.shards.put(req.Key, req.Value)

	if _, err := s.Write([]byte{1}); err != nil {
		log.Debugf("store stream from %s: writing ack: %v", s.Conn().RemotePeer(), err)
	}
}

// sendStore dials p over the explicit-replication protocol and delivers
// (key, value), returning whether it was acknowledged.
func (a *Actor) sendStore(ctx context.Context, p peer.ID, key, value []byte) bool {
	storeProto := protocol.ID(a.cfg.ProtocolPrefix + storeProtocolSuffix)

	streamCtx, cancel := context.WithTimeout(ctx, storeStreamTimeout)
	defer cancel()

	s, err := a.host.NewStream(streamCtx, p, storeProto)
	if err != nil {
		log.Debugf("opening store stream to %s: %v", p, err)
		return false
	}
	defer s.Close()
	s.SetDeadline(time.Now().Add(storeStreamTimeout))

	if err := writeStoreRequest(s, storeRequest{Key: key, Value: value}); err != nil {
		log.Debugf("writing store request to %s: %v", p, err)
		return false
	}

	ack := make([]byte, 1)
	if _, err := io.ReadFull(s, ack); err != nil {
		log.Debugf("reading store ack from %s: %v", p, err)
		return false
	}
	return ack[0] == 1
}
