package announce

import (
	"context"
	"sync"
)

// MockSpeaker implements Speaker for testing.
// If SpeakFunc is nil, Speak succeeds immediately.
type MockSpeaker struct {
	SpeakFunc func(ctx context.Context, text string) error

	mu    sync.Mutex
	texts []string
}

// Speak records the text and calls SpeakFunc.
func (m *MockSpeaker) Speak(ctx context.Context, text string) error {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()

	if m.SpeakFunc != nil {
		return m.SpeakFunc(ctx, text)
	}
	return nil
}

// Texts returns every text passed to Speak, in call order.
func (m *MockSpeaker) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.texts))
	copy(out, m.texts)
	return out
}

// Reset clears recorded calls.
func (m *MockSpeaker) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = nil
}

var _ Speaker = (*MockSpeaker)(nil)
