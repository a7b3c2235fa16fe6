package mocks

import (
	"context"
	"sync"
)

// MockConnectivityMonitor is a mock implementation of client.ConnectivityMonitor for testing.
type MockConnectivityMonitor struct {
	mu        sync.Mutex
	online    bool
	callbacks []func()

	StartFunc func(ctx context.Context)
}

func NewMockConnectivityMonitor(online bool) *MockConnectivityMonitor {
	return &MockConnectivityMonitor{online: online}
}

func (m *MockConnectivityMonitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *MockConnectivityMonitor) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online = online
}

func (m *MockConnectivityMonitor) OnOnline(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
	return func() {}
}

// FireOnline marks the monitor online and invokes every registered callback,
// simulating a regained connection.
func (m *MockConnectivityMonitor) FireOnline() {
	m.mu.Lock()
	m.online = true
	fns := append([]func(){}, m.callbacks...)
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (m *MockConnectivityMonitor) Start(ctx context.Context) {
	if m.StartFunc != nil {
		m.StartFunc(ctx)
	}
}
