package network

import (
	"bytes"
	"testing"
)

func TestStoreRequestRoundTrip(t *testing.T) {
	req := storeRequest{Key: []byte("shard-key"), Value: []byte("shard payload bytes")}

	var buf bytes.Buffer
	if err := writeStoreRequest(&buf, req); err != nil {
		t.Fatalf("writeStoreRequest: %v", err)
	}

	got, err := readStoreRequest(&buf)
	if err != nil {
		t.Fatalf("readStoreRequest: %v", err)
	}
	if !bytes.Equal(got.Key, req.Key) || !bytes.Equal(got.Value, req.Value) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, req)
	}
}

func TestLocalShardStorePutGet(t *testing.T) {
	s := newLocalShardStore()
	key := []byte("k1")
	value := []byte("v1")

	if _, ok := s.get(key); ok {
		t.Fatal("expected miss before put")
	}
	s.put(key, value)

	got, ok := s.get(key)
	if !ok {
		t.Fatal("expected hit after put")
	}
	if !bytes.Equal(got, value) {
		t.Fatalf("got %q want %q", got, value)
	}
}
