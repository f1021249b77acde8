package storage

import (
	"fmt"

	"github.com/klauspost/compress/s2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/leafmind/leafmind-go/pkg/memory"
)

// Stored values are compact binary: a two-byte header (schema version plus
// flags) followed by a msgpack payload, s2-compressed when the compression
// flag is set.
const (
	codecVersion byte = 1

	flagCompressed byte = 1 << 0
)

// codec encodes and decodes stored values.
type codec struct {
	compress bool
}

func newCodec(compress bool) *codec {
	return &codec{compress: compress}
}

// Encode serializes a value into the version-prefixed wire form.
func (c *codec) Encode(v interface{}) ([]byte, error) {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return nil, memory.NewMemoryError("Encode", fmt.Errorf("%w: %v", memory.ErrSerializationFailed, err))
	}

	var flags byte
	if c.compress {
		flags |= flagCompressed
		payload = s2.Encode(nil, payload)
	}

	out := make([]byte, 0, len(payload)+2)
	out = append(out, codecVersion, flags)
	return append(out, payload...), nil
}

// Decode deserializes a stored value. Values written with or without
// compression decode regardless of the codec's own setting; the header
// flags decide.
func (c *codec) Decode(data []byte, v interface{}) error {
	if len(data) < 2 {
		return memory.NewMemoryError("Decode", fmt.Errorf("%w: truncated value", memory.ErrSerializationFailed))
	}
	if data[0] != codecVersion {
		return memory.NewMemoryError("Decode", fmt.Errorf("%w: unsupported schema version %d", memory.ErrSerializationFailed, data[0]))
	}
	payload := data[2:]

	if data[1]&flagCompressed != 0 {
		decoded, err := s2.Decode(nil, payload)
		if err != nil {
			return memory.NewMemoryError("Decode", fmt.Errorf("%w: %v", memory.ErrSerializationFailed, err))
		}
		payload = decoded
	}

	if err := msgpack.Unmarshal(payload, v); err != nil {
		return memory.NewMemoryError("Decode", fmt.Errorf("%w: %v", memory.ErrSerializationFailed, err))
	}
	return nil
}
