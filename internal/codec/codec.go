// Package codec decompresses whole asset payloads by algorithm name.
//
// Every decoder writes into a buffer of exactly the declared original size
// and the result is rejected unless the stream produced that many bytes and
// no more. A partially filled buffer is never returned.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/oriath-net/gooz"
	"github.com/pierrec/lz4/v4"

	"github.com/jchantrell/spak/internal/asset"
)

// MaxOriginalSize caps the output buffer a single entry may ask for.
const MaxOriginalSize = 1 << 30

// Func decodes src into dst, which is exactly the declared original size.
// It must fail if the stream does not fill dst exactly.
type Func func(src, dst []byte) error

var registry = map[string]Func{
	"zlib":    streamDecoder(func(r io.Reader) (io.ReadCloser, error) { return zlib.NewReader(r) }),
	"gzip":    streamDecoder(func(r io.Reader) (io.ReadCloser, error) { return gzip.NewReader(r) }),
	"deflate": streamDecoder(func(r io.Reader) (io.ReadCloser, error) { return flate.NewReader(r), nil }),
	"zstd":    decodeZstd,
	"lz4":     decodeLZ4,
	"oodle":   decodeOodle,
}

// Lookup returns the decoder registered for algorithm.
func Lookup(algorithm string) (Func, bool) {
	fn, ok := registry[algorithm]
	return fn, ok
}

// Names returns the supported algorithm names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Supported reports whether algorithm has a registered decoder.
func Supported(algorithm string) bool {
	_, ok := registry[algorithm]
	return ok
}

// Decompress decodes src with algorithm into a new buffer of originalSize
// bytes.
func Decompress(src []byte, originalSize uint64, algorithm string) ([]byte, error) {
	fn, ok := Lookup(algorithm)
	if !ok {
		return nil, asset.Wrap(asset.ErrUnsupportedCodec, "decompress", "", fmt.Errorf("algorithm %q", algorithm))
	}
	if originalSize > MaxOriginalSize {
		return nil, asset.Wrap(asset.ErrDecompression, "decompress", "",
			fmt.Errorf("declared size %d exceeds limit %d", originalSize, MaxOriginalSize))
	}

	dst := make([]byte, originalSize)
	if err := fn(src, dst); err != nil {
		return nil, asset.Wrap(asset.ErrDecompression, "decompress", "", fmt.Errorf("%s: %w", algorithm, err))
	}
	return dst, nil
}

var errTrailingOutput = errors.New("stream produced more bytes than declared")

// streamDecoder adapts an io.Reader based decompressor. Reading to EOF after
// filling dst lets zlib and gzip verify their trailing checksums.
func streamDecoder(open func(io.Reader) (io.ReadCloser, error)) Func {
	return func(src, dst []byte) error {
		r, err := open(bytes.NewReader(src))
		if err != nil {
			return err
		}
		defer r.Close()

		if _, err := io.ReadFull(r, dst); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return fmt.Errorf("stream ended before %d bytes: %w", len(dst), io.ErrUnexpectedEOF)
			}
			return err
		}

		var probe [1]byte
		n, err := r.Read(probe[:])
		for n == 0 && err == nil {
			n, err = r.Read(probe[:])
		}
		if n > 0 {
			return errTrailingOutput
		}
		if !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	}
}

var (
	zstdOnce    sync.Once
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func decodeZstd(src, dst []byte) error {
	zstdOnce.Do(func() {
		zstdDecoder, zstdErr = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(MaxOriginalSize),
		)
	})
	if zstdErr != nil {
		return fmt.Errorf("initialising zstd decoder: %w", zstdErr)
	}

	out, err := zstdDecoder.DecodeAll(src, dst[:0])
	if err != nil {
		return err
	}
	if len(out) != len(dst) {
		return fmt.Errorf("got %d bytes, expected %d", len(out), len(dst))
	}
	// DecodeAll reallocates when the output outgrows dst's capacity, which
	// the length check above already rejects.
	if len(out) > 0 && &out[0] != &dst[0] {
		copy(dst, out)
	}
	return nil
}

func decodeLZ4(src, dst []byte) error {
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return err
	}
	if n != len(dst) {
		return fmt.Errorf("got %d bytes, expected %d", n, len(dst))
	}
	return nil
}

// Oodle streams carry no end marker of their own; gooz decodes until dst is
// full and errors on a malformed or short stream.
func decodeOodle(src, dst []byte) error {
	if len(src) == 0 && len(dst) > 0 {
		return io.ErrUnexpectedEOF
	}
	if _, err := gooz.Decompress(src, dst); err != nil {
		return err
	}
	return nil
}
