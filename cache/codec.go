package cache

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns structured values into the bytes stored under a key.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(b []byte, v any) error
}

// JSON is the default codec. Values stay readable with redis-cli and by
// services written in other languages.
type JSON struct{}

func (JSON) Name() string                    { return "json" }
func (JSON) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSON) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }

// Msgpack serializes values using vmihailenco/msgpack/v5. The zero value is
// ready to use. Mind the struct tags: msgpack reads `msgpack:"name"`, not
// `json:"name"`, unless the encoder is told otherwise.
type Msgpack struct{}

func (Msgpack) Name() string                    { return "msgpack" }
func (Msgpack) Marshal(v any) ([]byte, error)   { return msgpack.Marshal(v) }
func (Msgpack) Unmarshal(b []byte, v any) error { return msgpack.Unmarshal(b, v) }

// CBOR serializes values using fxamacker/cbor. Construct with NewCBOR.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBOR builds a CBOR codec. Time values are encoded as RFC3339Nano so
// cached timestamps stay comparable across codecs.
func NewCBOR() (CBOR, error) {
	eo := cbor.PreferredUnsortedEncOptions()
	eo.Time = cbor.TimeRFC3339Nano
	em, err := eo.EncMode()
	if err != nil {
		return CBOR{}, err
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return CBOR{}, err
	}
	return CBOR{enc: em, dec: dm}, nil
}

func (CBOR) Name() string                      { return "cbor" }
func (c CBOR) Marshal(v any) ([]byte, error)   { return c.enc.Marshal(v) }
func (c CBOR) Unmarshal(b []byte, v any) error { return c.dec.Unmarshal(b, v) }

// CodecByName resolves "json", "msgpack" or "cbor". An empty name selects
// JSON.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON{}, nil
	case "msgpack":
		return Msgpack{}, nil
	case "cbor":
		return NewCBOR()
	default:
		return nil, fmt.Errorf("cache: unknown codec %q", name)
	}
}
