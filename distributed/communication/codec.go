package communication

import (
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"gridsql/core"
)

// Codec selects the compression applied to row batches on the wire.
type Codec string

const (
	CodecNone   Codec = "none"
	CodecSnappy Codec = "snappy"
	CodecZstd   Codec = "zstd"
)

// ParseCodec maps a codec name to a Codec; unknown names fall back to
// snappy, the default for exchange traffic.
func ParseCodec(name string) Codec {
	switch Codec(name) {
	case CodecNone, CodecSnappy, CodecZstd:
		return Codec(name)
	default:
		return CodecSnappy
	}
}

func encodeRows(rows []core.Row, codec Codec) ([]byte, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rows: %w", err)
	}

	switch codec {
	case CodecNone:
		return data, nil
	case CodecSnappy:
		return snappy.Encode(nil, data), nil
	case CodecZstd:
		encoder, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		defer encoder.Close()
		return encoder.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("unknown codec %q", codec)
	}
}

func decodeRows(payload []byte, codec Codec) ([]core.Row, error) {
	if len(payload) == 0 {
		return nil, nil
	}

	var data []byte
	var err error
	switch codec {
	case CodecNone:
		data = payload
	case CodecSnappy:
		data, err = snappy.Decode(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress snappy payload: %w", err)
		}
	case CodecZstd:
		decoder, derr := zstd.NewReader(nil)
		if derr != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", derr)
		}
		defer decoder.Close()
		data, err = decoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress zstd payload: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown codec %q", codec)
	}

	var rows []core.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode rows: %w", err)
	}
	return rows, nil
}
