package devtools

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
)

// PipeTransport speaks the --remote-debugging-pipe framing: every message is
// a JSON document terminated by a NUL byte.
type PipeTransport struct {
	r *bufio.Reader
	w io.Writer

	closers []io.Closer

	writeMu sync.Mutex
	mu      sync.Mutex
	closed  bool
}

// NewPipeTransport reads frames from r and writes frames to w. If either
// implements io.Closer it is closed by Close.
func NewPipeTransport(r io.Reader, w io.Writer) *PipeTransport {
	t := &PipeTransport{
		r: bufio.NewReader(r),
		w: w,
	}
	if c, ok := r.(io.Closer); ok {
		t.closers = append(t.closers, c)
	}
	if c, ok := w.(io.Closer); ok {
		t.closers = append(t.closers, c)
	}
	return t
}

// Open is a no-op; the pipe exists as soon as the browser is started.
func (t *PipeTransport) Open(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return io.ErrClosedPipe
	}
	return nil
}

// WriteMessage writes data followed by the NUL terminator.
func (t *PipeTransport) WriteMessage(_ context.Context, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	frame := make([]byte, 0, len(data)+1)
	frame = append(frame, data...)
	frame = append(frame, 0)
	_, err := t.w.Write(frame)
	return err
}

// ReadMessage returns the next frame without its terminator.
func (t *PipeTransport) ReadMessage(_ context.Context) ([]byte, error) {
	b, err := t.r.ReadBytes(0)
	if err != nil {
		if errors.Is(err, io.EOF) && len(b) > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return b[:len(b)-1], nil
}

// Close closes the underlying reader and writer.
func (t *PipeTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	var errs []error
	for _, c := range t.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
