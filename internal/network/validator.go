package network

// shardValidator implements the go-libp2p-kad-dht record.Validator interface
// for the "datamesh" record namespace. Shard values are immutable and
// content-addressed (the DHT key is itself derived from a hash of the file
// key and shard index), so there is nothing to authenticate at the DHT layer
// beyond accepting any value-of-the-right-key and, when more than one
// candidate is seen for the same key, always selecting the first: content
// addressing means distinct honest values under the same key cannot occur.
type shardValidator struct{}

// Validate accepts any non-empty value; shard integrity is the erasure
// layer's concern (reconstruction fails cleanly on a corrupt shard), not the
// DHT record layer's.
func (shardValidator) Validate(key string, value []byte) error {
	if len(value) == 0 {
		return errEmptyRecord
	}
	return nil
}

// Select always prefers the first candidate: content-addressed shards never
// legitimately disagree under the same key.
func (shardValidator) Select(key string, values [][]byte) (int, error) {
	return 0, nil
}

var errEmptyRecord = emptyRecordError{}

type emptyRecordError struct{}

func (emptyRecordError) Error() string { return "empty shard record" }
