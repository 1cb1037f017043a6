package adminrpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is the content subtype clients must request (via
// grpc.CallContentSubtype) to exchange JSON-encoded messages instead of the
// protobuf wire format gRPC expects by default.
const jsonCodecName = "json"

// jsonCodec lets the admin surface speak plain structs over gRPC without a
// protoc code-generation step: there is no .proto compiler available in
// this build, so a hand-registered encoding.Codec substitutes for generated
// protobuf message types, documented as a deliberate substitution rather
// than an attempt to hand-roll protobuf wire compatibility.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
