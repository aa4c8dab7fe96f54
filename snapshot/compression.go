package snapshot

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how files are stored in the blob store.
type Compression uint8

const (
	// CompressionNone stores files verbatim.
	CompressionNone Compression = iota
	// CompressionZstd uses zstd (better ratio, default).
	CompressionZstd
	// CompressionLZ4 uses LZ4 block compression (faster).
	CompressionLZ4
)

var errSizeMismatch = errors.New("snapshot: decompressed size mismatch")

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression parses a compression name.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("snapshot: unknown compression %q", s)
	}
}

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

// compress returns the stored form of data and the compression actually
// used. Data that does not shrink is stored verbatim.
func compress(data []byte, c Compression) ([]byte, Compression, error) {
	if len(data) == 0 {
		return data, CompressionNone, nil
	}

	var out []byte

	switch c {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionZstd:
		enc := getZstdEncoder()
		out = enc.EncodeAll(data, make([]byte, 0, len(data)/2))
		zstdEncoderPool.Put(enc)
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))

		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, 0, err
		}

		// 0 means incompressible.
		if n == 0 {
			return data, CompressionNone, nil
		}

		out = buf[:n]
	default:
		return nil, 0, fmt.Errorf("snapshot: unknown compression %d", c)
	}

	if len(out) >= len(data) {
		return data, CompressionNone, nil
	}

	return out, c, nil
}

// decompress reverses compress. size is the raw size recorded in the manifest.
func decompress(data []byte, c Compression, size int64) ([]byte, error) {
	switch c {
	case CompressionNone:
		if int64(len(data)) != size {
			return nil, errSizeMismatch
		}

		return data, nil
	case CompressionZstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		out, err := dec.DecodeAll(data, make([]byte, 0, size))
		if err != nil {
			return nil, err
		}

		if int64(len(out)) != size {
			return nil, errSizeMismatch
		}

		return out, nil
	case CompressionLZ4:
		out := make([]byte, size)

		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, err
		}

		if int64(n) != size {
			return nil, errSizeMismatch
		}

		return out, nil
	default:
		return nil, fmt.Errorf("snapshot: unknown compression %d", c)
	}
}
