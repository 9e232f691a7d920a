package ping

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
	_ "google.golang.org/grpc/encoding/proto" // registers the default codec first so ours replaces it
	"google.golang.org/protobuf/proto"
)

// Ping messages are plain structs, so they travel as JSON inside the "proto"
// content subtype. Generated protobuf messages keep the standard encoding;
// clients only need to import this package.
func init() {
	encoding.RegisterCodec(codec{})
}

type codec struct{}

func (codec) Name() string { return "proto" }

func (codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case *PingRequest, *PingResponse:
		return json.Marshal(m)
	case proto.Message:
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("ping: cannot marshal %T", v)
}

func (codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case *PingRequest, *PingResponse:
		return json.Unmarshal(data, m)
	case proto.Message:
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("ping: cannot unmarshal %T", v)
}
