package erasure

import (
	"bytes"
	"testing"
)

func encodeSample(t *testing.T, data []byte, k, m int) ([]Shard, Layout) {
	t.Helper()
	shards, layout, err := Encode(data, k, m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(shards) != k+m {
		t.Fatalf("got %d shards, want %d", len(shards), k+m)
	}
	return shards, layout
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("datamesh erasure coding test payload "), 200)
	shards, layout := encodeSample(t, data, 4, 2)

	got, err := Decode(shards, layout)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(data))
	}
}

func TestDecodeToleratesMissingParityShards(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 10000)
	shards, layout := encodeSample(t, data, 4, 2)

	// Drop the two parity shards; k=4 data shards remain, which is exactly enough.
	available := make([]Shard, 0, len(shards))
	for _, s := range shards {
		if s.Index < layout.DataShards {
			available = append(available, s)
		}
	}

	got, err := Decode(available, layout)
	if err != nil {
		t.Fatalf("Decode with only data shards: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("reconstructed data mismatch when only data shards present")
	}
}

func TestDecodeToleratesLostDataShards(t *testing.T) {
	data := bytes.Repeat([]byte("y"), 10000)
	shards, layout := encodeSample(t, data, 4, 2)

	// Lose 2 of the 6 shards (within the m=2 fault tolerance budget).
	available := make([]Shard, 0, len(shards))
	for _, s := range shards {
		if s.Index == 0 || s.Index == 3 {
			continue
		}
		available = append(available, s)
	}

	got, err := Decode(available, layout)
	if err != nil {
		t.Fatalf("Decode tolerating m lost shards: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("reconstructed data mismatch after losing shards within fault tolerance")
	}
}

func TestDecodeFailsBelowThreshold(t *testing.T) {
	data := bytes.Repeat([]byte("z"), 10000)
	shards, layout := encodeSample(t, data, 4, 2)

	// Keep only 3 of 6 shards — below k=4, must be unrecoverable.
	available := shards[:3]

	if _, err := Decode(available, layout); err == nil {
		t.Fatal("expected Decode to fail with fewer than k shards available")
	}
}

func TestVerifyShapeCompatible(t *testing.T) {
	layout := Layout{DataShards: 4, ParityShards: 2}
	if !VerifyShapeCompatible(layout, 4) {
		t.Fatal("expected exactly k reachable shards to be compatible")
	}
	if VerifyShapeCompatible(layout, 3) {
		t.Fatal("expected fewer than k reachable shards to be incompatible")
	}
}

func BenchmarkEncode(b *testing.B) {
	data := bytes.Repeat([]byte("datamesh benchmark payload "), 40000) // ~1.1MB

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := Encode(data, 4, 2); err != nil {
			b.Fatalf("Encode: %v", err)
		}
	}
}

func BenchmarkDecodeFullSet(b *testing.B) {
	data := bytes.Repeat([]byte("datamesh benchmark payload "), 40000)
	shards, layout, err := Encode(data, 4, 2)
	if err != nil {
		b.Fatalf("Encode: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Decode(shards, layout); err != nil {
			b.Fatalf("Decode: %v", err)
		}
	}
}

func BenchmarkDecodeReconstructing(b *testing.B) {
	data := bytes.Repeat([]byte("datamesh benchmark payload "), 40000)
	shards, layout, err := Encode(data, 4, 2)
	if err != nil {
		b.Fatalf("Encode: %v", err)
	}
	available := make([]Shard, 0, len(shards))
	for _, s := range shards {
		if s.Index == 0 || s.Index == 1 {
			continue
		}
		available = append(available, s)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Decode(available, layout); err != nil {
			b.Fatalf("Decode: %v", err)
		}
	}
}
