package perception

import (
	"context"
	"sync"
)

// Mock implements Provider for testing.
type Mock struct {
	// ProcessFunc is called when Process is invoked.
	// If nil, returns an empty Output.
	ProcessFunc func(ctx context.Context, jpeg []byte) (*Output, error)

	mu    sync.Mutex
	calls int
}

// Process calls ProcessFunc and counts the call.
func (m *Mock) Process(ctx context.Context, jpeg []byte) (*Output, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.ProcessFunc != nil {
		return m.ProcessFunc(ctx, jpeg)
	}
	return &Output{}, nil
}

// Calls returns how many frames were processed.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// CameraFunc adapts a function to the Camera interface.
type CameraFunc func() ([]byte, error)

// CaptureJPEG calls f.
func (f CameraFunc) CaptureJPEG() ([]byte, error) {
	return f()
}

var _ Provider = (*Mock)(nil)
