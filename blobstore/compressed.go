package blobstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the codec of a compressed store.
type Compression uint8

const (
	// CompressionNone stores blobs as is.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast, good for hot data).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD (better ratio, good for cold data).
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("blobstore: unknown compression %q", s)
	}
}

// ErrCorruptEnvelope is returned when a compressed blob cannot be decoded.
var ErrCorruptEnvelope = errors.New("blobstore: corrupt compression envelope")

// Envelope format: ["NGZ"][codec u8][uncompressed u32][compressed u32][data].
// Blobs without the prefix are returned unchanged, so a compressed store can
// read data written before compression was enabled.
var envelopeMagic = [3]byte{'N', 'G', 'Z'}

const envelopeHeaderSize = 12

var (
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

// CompressedStore wraps a Store and compresses blob content.
type CompressedStore struct {
	inner Store
	codec Compression
}

// Compressed wraps inner. CompressionNone returns inner itself.
func Compressed(inner Store, codec Compression) Store {
	if codec == CompressionNone {
		return inner
	}
	return &CompressedStore{inner: inner, codec: codec}
}

// Get reads and decodes a blob.
func (s *CompressedStore) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := s.inner.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Put encodes and writes a blob.
func (s *CompressedStore) Put(ctx context.Context, name string, data []byte) error {
	enc, err := Encode(data, s.codec)
	if err != nil {
		return err
	}
	return s.inner.Put(ctx, name, enc)
}

// Delete removes a blob.
func (s *CompressedStore) Delete(ctx context.Context, name string) error {
	return s.inner.Delete(ctx, name)
}

// List lists blobs of the wrapped store.
func (s *CompressedStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Encode wraps data in a compression envelope. Incompressible data is stored
// raw inside the envelope.
func Encode(data []byte, codec Compression) ([]byte, error) {
	var body []byte
	switch codec {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("blobstore: lz4: %w", err)
		}
		body = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		body = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("blobstore: unknown compression %d", codec)
	}

	if len(body) == 0 || len(body) >= len(data) {
		codec, body = CompressionNone, data
	}
	out := make([]byte, envelopeHeaderSize+len(body))
	copy(out, envelopeMagic[:])
	out[3] = byte(codec)
	binary.LittleEndian.PutUint32(out[4:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[8:], uint32(len(body)))
	copy(out[envelopeHeaderSize:], body)
	return out, nil
}

// Decode unwraps a compression envelope. Data without an envelope is
// returned as is.
func Decode(data []byte) ([]byte, error) {
	if len(data) < envelopeHeaderSize || [3]byte(data[:3]) != envelopeMagic {
		return data, nil
	}
	codec := Compression(data[3])
	size := binary.LittleEndian.Uint32(data[4:])
	clen := binary.LittleEndian.Uint32(data[8:])
	if uint64(len(data)) < envelopeHeaderSize+uint64(clen) {
		return nil, ErrCorruptEnvelope
	}
	body := data[envelopeHeaderSize : envelopeHeaderSize+clen]

	switch codec {
	case CompressionNone:
		if clen != size {
			return nil, ErrCorruptEnvelope
		}
		return append([]byte(nil), body...), nil
	case CompressionLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptEnvelope, err)
		}
		if uint32(n) != size {
			return nil, ErrCorruptEnvelope
		}
		return out, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(body, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptEnvelope, err)
		}
		if uint32(len(out)) != size {
			return nil, ErrCorruptEnvelope
		}
		return out, nil
	default:
		return nil, ErrCorruptEnvelope
	}
}
