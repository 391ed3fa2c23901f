package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu              sync.RWMutex
	publishedEvents []*SwapEvent
	publishError    error
	closed          bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedEvents: make([]*SwapEvent, 0),
	}
}

// PublishSwap records the event and returns any configured error.
func (m *MockPublisher) PublishSwap(ctx context.Context, event *SwapEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.publishedEvents = append(m.publishedEvents, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns all published events (for testing).
func (m *MockPublisher) GetPublishedEvents() []*SwapEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*SwapEvent, len(m.publishedEvents))
	copy(events, m.publishedEvents)
	return events
}

// GetPublishedEventCount returns the number of published events.
func (m *MockPublisher) GetPublishedEventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.publishedEvents)
}

// GetPublishedEventsForDirection returns events published for one corridor.
func (m *MockPublisher) GetPublishedEventsForDirection(direction string) []*SwapEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*SwapEvent, 0)
	for _, event := range m.publishedEvents {
		if event.Direction == direction {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError configures the mock to return an error on PublishSwap.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Reset clears all published events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishedEvents = make([]*SwapEvent, 0)
	m.publishError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
