package cli

import (
	"os"

	"github.com/audiotap/audiotap/internal/trace"
)

// openTrace opens a trace file for decoding. Compression is sniffed by
// the decoder, so callers never need to care.
func openTrace(path string) (*trace.Decoder, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, usage("failed to open trace", err)
	}
	dec, err := trace.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, nil, usage("failed to read trace", err)
	}
	cleanup := func() error {
		dec.Close()
		return f.Close()
	}
	return dec, cleanup, nil
}
