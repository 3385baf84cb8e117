package recovery

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4"
	"golang.org/x/crypto/blake2b"
)

// Codec compresses and decompresses opaque partition state. Three real
// codecs are provided (zstd, snappy, lz4), each a thin wrapper over a
// well-established compression library, so a deployment can trade
// compression ratio against CPU cost per recovery store.
type Codec interface {
	Name() string
	Compress(p []byte) ([]byte, error)
	Decompress(p []byte) ([]byte, error)
}

// NoopCodec stores state uncompressed. bytewaxrun selects it with
// --codec none.
type NoopCodec struct{}

func (NoopCodec) Name() string                        { return "none" }
func (NoopCodec) Compress(p []byte) ([]byte, error)   { return p, nil }
func (NoopCodec) Decompress(p []byte) ([]byte, error) { return p, nil }

// ZstdCodec compresses with github.com/klauspost/compress/zstd.
type ZstdCodec struct{}

func (ZstdCodec) Name() string { return "zstd" }

func (ZstdCodec) Compress(p []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: new writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(p, nil), nil
}

func (ZstdCodec) Decompress(p []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: new reader: %w", err)
	}
	defer dec.Close()
	return dec.DecodeAll(p, nil)
}

// SnappyCodec compresses with github.com/golang/snappy.
type SnappyCodec struct{}

func (SnappyCodec) Name() string { return "snappy" }

func (SnappyCodec) Compress(p []byte) ([]byte, error) {
	return snappy.Encode(nil, p), nil
}

func (SnappyCodec) Decompress(p []byte) ([]byte, error) {
	return snappy.Decode(nil, p)
}

// LZ4Codec compresses with github.com/pierrec/lz4.
type LZ4Codec struct{}

func (LZ4Codec) Name() string { return "lz4" }

func (LZ4Codec) Compress(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(p); err != nil {
		return nil, fmt.Errorf("lz4: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4: close: %w", err)
	}
	return buf.Bytes(), nil
}

func (LZ4Codec) Decompress(p []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(p))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("lz4: read: %w", err)
	}
	return out, nil
}

// checksumSize is the length of a blake2b-256 digest.
const checksumSize = 32

// Encode compresses p with codec and appends a blake2b-256 checksum of the
// compressed bytes, so Decode can detect truncation or corruption before
// trusting the decompressor.
func Encode(codec Codec, p []byte) ([]byte, error) {
	compressed, err := codec.Compress(p)
	if err != nil {
		return nil, fmt.Errorf("recovery: %s: compress: %w", codec.Name(), err)
	}
	sum := blake2b.Sum256(compressed)
	return append(compressed, sum[:]...), nil
}

// Decode verifies the trailing checksum, then decompresses with codec.
func Decode(codec Codec, p []byte) ([]byte, error) {
	if len(p) < checksumSize {
		return nil, fmt.Errorf("recovery: %s: payload too short to contain a checksum (%d bytes)", codec.Name(), len(p))
	}
	split := len(p) - checksumSize
	compressed, wantSum := p[:split], p[split:]
	gotSum := blake2b.Sum256(compressed)
	if !bytes.Equal(gotSum[:], wantSum) {
		return nil, fmt.Errorf("recovery: %s: checksum mismatch, record truncated or corrupted", codec.Name())
	}
	out, err := codec.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("recovery: %s: decompress: %w", codec.Name(), err)
	}
	return out, nil
}
