package perception

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrNoCamera is returned by ProviderSource when no camera is configured.
var ErrNoCamera = errors.New("perception: camera required")

// Replay reads recorded perception output, one JSON Output per line.
// Blank lines are skipped.
type Replay struct {
	scanner *bufio.Scanner
	closer  io.Closer
	line    int
}

// NewReplay creates a replay source reading from r.
func NewReplay(r io.Reader) *Replay {
	sc := bufio.NewScanner(r)
	// Depth maps and masks make long lines.
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	rp := &Replay{scanner: sc}
	if c, ok := r.(io.Closer); ok {
		rp.closer = c
	}
	return rp
}

// OpenReplay opens a JSON-lines recording from disk.
func OpenReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay: %w", err)
	}
	return NewReplay(f), nil
}

// Next returns the next recorded frame, or io.EOF at the end of the recording.
func (r *Replay) Next(ctx context.Context) (*Output, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return nil, fmt.Errorf("read replay line %d: %w", r.line+1, err)
			}
			return nil, io.EOF
		}
		r.line++

		data := r.scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		var out Output
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode replay line %d: %w", r.line, err)
		}
		return &out, nil
	}
}

// Close releases the underlying reader when it is closable.
func (r *Replay) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// ProviderSource captures a frame from a camera and runs it through a Provider.
type ProviderSource struct {
	Camera   Camera
	Provider Provider
}

// Next captures and processes one frame.
func (s *ProviderSource) Next(ctx context.Context) (*Output, error) {
	if s.Camera == nil {
		return nil, ErrNoCamera
	}
	frame, err := s.Camera.CaptureJPEG()
	if err != nil {
		return nil, fmt.Errorf("capture frame: %w", err)
	}
	return s.Provider.Process(ctx, frame)
}

var (
	_ Source = (*Replay)(nil)
	_ Source = (*ProviderSource)(nil)
)
