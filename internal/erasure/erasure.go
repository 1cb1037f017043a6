// Package erasure splits an encrypted file into k data shards and m parity
// shards using Reed-Solomon coding, and reconstructs it from any k of the
// k+m shards. It operates strictly after the crypto layer: every byte it
// shards is already ciphertext, so a parity shard is bit-for-bit
// indistinguishable from a data shard to anyone without the plaintext length.
package erasure

import (
	"bytes"
	"encoding/binary"

	"github.com/klauspost/reedsolomon"

	"github.com/ioustamora/datamesh/internal/errors"
)

// lengthPrefixSize is the width of the original-ciphertext-length header
// erasure.Encode prepends before splitting. Decode joins Layout.OriginalSize
// bytes of the data shards and then uses this header to cut the ciphertext
// out of them.
const lengthPrefixSize = 8

// Shard is one data or parity shard produced by Encode, addressed by its
// position in the k+m sequence.
type Shard struct {
	Index int
	Data  []byte
}

// Layout records the shape needed to reconstruct a file: how many of the
// k+m shards are data versus parity, and the exact length of the
// length-prefixed ciphertext so trailing Reed-Solomon padding can be trimmed.
type Layout struct {
	DataShards   int
	ParityShards int
	ShardSize    int
	OriginalSize int64 // length of the ciphertext plus its length prefix, before sharding
}

// TotalShards returns k+m.
func (l Layout) TotalShards() int { return l.DataShards + l.ParityShards }

// Encode splits ciphertext into dataShards data shards and parityShards
// parity shards. The returned Layout is required to later Decode.
func Encode(ciphertext []byte, dataShards, parityShards int) ([]Shard, Layout, error) {
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, Layout{}, errors.Wrap(errors.KindEncodeFailed, err, "constructing reed-solomon encoder")
	}

	prefixed := make([]byte, lengthPrefixSize+len(ciphertext))
	binary.BigEndian.PutUint64(prefixed[:lengthPrefixSize], uint64(len(ciphertext)))
	copy(prefixed[lengthPrefixSize:], ciphertext)

	split, err := enc.Split(prefixed)
	if err != nil {
		return nil, Layout{}, errors.Wrap(errors.KindEncodeFailed, err, "splitting ciphertext into shards")
	}
	if err := enc.Encode(split); err != nil {
		return nil, Layout{}, errors.Wrap(errors.KindEncodeFailed, err, "computing parity shards")
	}

	shards := make([]Shard, len(split))
	for i, s := range split {
		shards[i] = Shard{Index: i, Data: s}
	}

	layout := Layout{
		DataShards:   dataShards,
		ParityShards: parityShards,
		ShardSize:    len(split[0]),
		OriginalSize: int64(len(prefixed)),
	}
	return shards, layout, nil
}

// Decode reconstructs the original ciphertext from the shards present in
// available. Each shard is placed by its Index, so available may be in any
// order and of any length: a missing shard may be omitted or carry nil Data,
// and entries whose Index is outside [0, k+m) are ignored. Decode succeeds
// whenever at least layout.DataShards of the k+m positions are present.
func Decode(available []Shard, layout Layout) ([]byte, error) {
	total := layout.TotalShards()

	present := 0
	reconstructShards := make([][]byte, total)
	for _, s := range available {
		if s.Index < 0 || s.Index >= total {
			continue
		}
		if s.Data != nil {
			reconstructShards[s.Index] = s.Data
			present++
		}
	}
	if present < layout.DataShards {
		return nil, errors.New(errors.KindUnrecoverable, errors.InsufficientShardsHint)
	}

	enc, err := reedsolomon.New(layout.DataShards, layout.ParityShards)
	if err != nil {
		return nil, errors.Wrap(errors.KindEncodeFailed, err, "constructing reed-solomon decoder")
	}

	if err := enc.Reconstruct(reconstructShards); err != nil {
		return nil, errors.Wrap(errors.KindUnrecoverable, err, "reconstructing shards")
	}

	var buf bytes.Buffer
	if err := enc.Join(&buf, reconstructShards, int(layout.OriginalSize)); err != nil {
		return nil, errors.Wrap(errors.KindUnrecoverable, err, "joining reconstructed shards")
	}

	prefixed := buf.Bytes()
	if len(prefixed) < lengthPrefixSize {
		return nil, errors.New(errors.KindUnrecoverable, "reconstructed data shorter than length prefix")
	}
	origLen := binary.BigEndian.Uint64(prefixed[:lengthPrefixSize])
	body := prefixed[lengthPrefixSize:]
	if uint64(len(body)) < origLen {
		return nil, errors.New(errors.KindUnrecoverable, "reconstructed data shorter than recorded length")
	}
	return body[:origLen], nil
}

// VerifyShapeCompatible reports whether a Layout can still be decoded given
// the number of shards currently reachable, without attempting the (costly)
// reconstruction itself.
func VerifyShapeCompatible(layout Layout, reachableShards int) bool {
	return reachableShards >= layout.DataShards
}
