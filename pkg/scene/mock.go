package scene

import (
	"context"
	"sync"
)

// Mock implements Describer for testing.
// Nil function fields return ErrUnavailable.
type Mock struct {
	DescribeFunc func(ctx context.Context, s Summary, mode Mode) (string, error)
	AnswerFunc   func(ctx context.Context, question string, s Summary) (string, error)

	mu        sync.Mutex
	describes int
	answers   int
}

// Describe calls DescribeFunc.
func (m *Mock) Describe(ctx context.Context, s Summary, mode Mode) (string, error) {
	m.mu.Lock()
	m.describes++
	m.mu.Unlock()
	if m.DescribeFunc != nil {
		return m.DescribeFunc(ctx, s, mode)
	}
	return "", ErrUnavailable
}

// Answer calls AnswerFunc.
func (m *Mock) Answer(ctx context.Context, question string, s Summary) (string, error) {
	m.mu.Lock()
	m.answers++
	m.mu.Unlock()
	if m.AnswerFunc != nil {
		return m.AnswerFunc(ctx, question, s)
	}
	return "", ErrUnavailable
}

// DescribeCalls returns how many times Describe was called.
func (m *Mock) DescribeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.describes
}

// AnswerCalls returns how many times Answer was called.
func (m *Mock) AnswerCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.answers
}

var _ Describer = (*Mock)(nil)
