// Package apiv1 holds the daemon's gRPC wire contract described by
// proto/tacsync/v1/tacsync.proto: message types, service descriptors, typed
// clients, and the JSON codec both ends use.
package apiv1

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// CodecName is the gRPC content-subtype the daemon speaks.
const CodecName = "json"

// codec encodes protobuf messages with protojson and plain Go structs with
// encoding/json.
type codec struct{}

func (codec) Name() string { return CodecName }

func (codec) Marshal(v any) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return protojson.Marshal(m)
	}
	return json.Marshal(v)
}

func (codec) Unmarshal(data []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return protojson.Unmarshal(data, m)
	}
	return json.Unmarshal(data, v)
}

func init() {
	encoding.RegisterCodec(codec{})
}
