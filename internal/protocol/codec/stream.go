package codec

import (
	"io"

	"github.com/danmuck/sv2wire/internal/protocol/frame"
)

// ReadFrame drives d with blocking reads from r until one frame completes.
// On error the partial frame is dropped.
func ReadFrame(r io.Reader, d *Decoder) (frame.Frame, error) {
	for {
		if _, err := io.ReadFull(r, d.Writable()); err != nil {
			d.Reset()
			return nil, err
		}
		res, err := d.NextFrame()
		if err != nil {
			return nil, err
		}
		if res.Ready() {
			return res.Frame, nil
		}
	}
}

// WriteFrame encodes f with e, writes it to w, and releases f.
func WriteFrame(w io.Writer, e *Encoder, f frame.Frame) error {
	if f == nil {
		return ErrNilFrame
	}
	defer f.Release()
	out, err := e.Encode(f)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
