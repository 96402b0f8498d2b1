package mocks

import (
	"context"
	"sync"
)

// MockNotifier records webhook deliveries. The zero value accepts
// everything; set PostFunc to simulate receiver failures.
type MockNotifier struct {
	mu sync.Mutex

	PostFunc func(ctx context.Context, url string, payload interface{}) error

	Deliveries []Delivery
}

type Delivery struct {
	Url     string
	Payload interface{}
}

func (m *MockNotifier) Post(ctx context.Context, url string, payload interface{}) error {
	m.mu.Lock()
	m.Deliveries = append(m.Deliveries, Delivery{Url: url, Payload: payload})
	m.mu.Unlock()

	if m.PostFunc != nil {
		return m.PostFunc(ctx, url, payload)
	}
	return nil
}

func (m *MockNotifier) DeliveriesTo(url string) []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Delivery
	for _, d := range m.Deliveries {
		if d.Url == url {
			out = append(out, d)
		}
	}
	return out
}
