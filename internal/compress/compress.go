// Package compress frames small sidecar files as a single compressed block.
//
// Format: [Magic uint32][Type uint8][UncompressedSize uint32][CompressedSize uint32][Data...]
// A CompressedSize of 0 means the data is stored uncompressed.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type defines the compression algorithm used.
type Type uint8

const (
	// None stores data as is.
	None Type = 0
	// LZ4 is LZ4 block compression.
	LZ4 Type = 1
	// ZSTD is Zstandard compression.
	ZSTD Type = 2
)

const (
	magic      uint32 = 0x56444553 // "VDES"
	headerSize        = 13
)

var (
	// ErrCorrupt is returned for frames that fail validation.
	ErrCorrupt = errors.New("corrupt compressed frame")

	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Encode compresses data with t and frames it. Data that does not shrink
// is stored uncompressed.
func Encode(data []byte, t Type) ([]byte, error) {
	var compressed []byte
	switch t {
	case None:
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case ZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("unknown compression type %d", t)
	}

	if len(compressed) == 0 || len(compressed) >= len(data) {
		compressed = nil
	}

	out := make([]byte, headerSize, headerSize+max(len(compressed), len(data)))
	binary.LittleEndian.PutUint32(out[0:], magic)
	out[4] = byte(t)
	binary.LittleEndian.PutUint32(out[5:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[9:], uint32(len(compressed)))
	if compressed == nil {
		return append(out, data...), nil
	}
	return append(out, compressed...), nil
}

// Decode reverses Encode.
func Decode(frame []byte) ([]byte, error) {
	if len(frame) < headerSize || binary.LittleEndian.Uint32(frame[0:]) != magic {
		return nil, ErrCorrupt
	}
	t := Type(frame[4])
	size := binary.LittleEndian.Uint32(frame[5:])
	csize := binary.LittleEndian.Uint32(frame[9:])
	body := frame[headerSize:]

	if csize == 0 {
		if uint32(len(body)) != size {
			return nil, ErrCorrupt
		}
		return body, nil
	}
	if uint32(len(body)) != csize {
		return nil, ErrCorrupt
	}

	switch t {
	case LZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(n) != size {
			return nil, ErrCorrupt
		}
		return out, nil
	case ZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(body, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(len(out)) != size {
			return nil, ErrCorrupt
		}
		return out, nil
	default:
		return nil, ErrCorrupt
	}
}
