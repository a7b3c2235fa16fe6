// Package netmon tracks whether the central API is reachable and how good
// the link is. Event-driven updates and the periodic probe both funnel into
// a single state-update function, so there is one source of truth for
// "online" and transition callbacks fire exactly once per genuine change.
package netmon

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"
)

// Quality is a best-effort link classification. It is advisory only: callers
// may use it as a tie-breaker (batch sizing), never as a correctness gate.
type Quality string

const (
	QualityFast     Quality = "fast"
	QualityModerate Quality = "moderate"
	QualitySlow     Quality = "slow"
	QualityOffline  Quality = "offline"
)

const (
	fastThreshold     = 200 * time.Millisecond
	moderateThreshold = 600 * time.Millisecond
)

type Monitor struct {
	probeURL string
	interval time.Duration
	client   *http.Client

	mu        sync.Mutex
	online    bool
	quality   Quality
	subID     int
	onOnline  map[int]func()
	onOffline map[int]func()
}

func New(probeURL string, interval, timeout time.Duration) *Monitor {
	return &Monitor{
		probeURL:  probeURL,
		interval:  interval,
		client:    &http.Client{Timeout: timeout},
		online:    true,
		quality:   QualityModerate,
		onOnline:  make(map[int]func()),
		onOffline: make(map[int]func()),
	}
}

func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Monitor) Quality() Quality {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quality
}

// OnOnline registers a callback fired once per offline→online transition.
// The returned function unregisters it.
func (m *Monitor) OnOnline(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subID++
	id := m.subID
	m.onOnline[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.onOnline, id)
	}
}

// OnOffline registers a callback fired once per online→offline transition.
func (m *Monitor) OnOffline(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subID++
	id := m.subID
	m.onOffline[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.onOffline, id)
	}
}

// Start runs the periodic re-check until the context is cancelled. An
// immediate check runs first so callers don't wait a full interval for the
// initial state.
func (m *Monitor) Start(ctx context.Context) {
	m.CheckNow(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// CheckNow probes the API and updates the state. Returns the measured
// quality.
func (m *Monitor) CheckNow(ctx context.Context) Quality {
	q := m.probe(ctx)
	m.setState(q != QualityOffline, q)
	return q
}

// SetOnline feeds an externally observed connectivity signal through the
// same state-update path as the probe. Quality is set pessimistically until
// the next probe refines it.
func (m *Monitor) SetOnline(online bool) {
	if online {
		m.setState(true, QualityModerate)
	} else {
		m.setState(false, QualityOffline)
	}
}

// BatchSizeHint shrinks a batch size on a poor link. Advisory only.
func (m *Monitor) BatchSizeHint(batchSize int) int {
	m.mu.Lock()
	q := m.quality
	m.mu.Unlock()

	if q == QualitySlow {
		half := batchSize / 2
		if half < 1 {
			return 1
		}
		return half
	}
	return batchSize
}

func (m *Monitor) probe(ctx context.Context) Quality {
	if m.probeURL == "" {
		return QualityModerate
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		return QualityOffline
	}

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		return QualityOffline
	}
	resp.Body.Close()

	rtt := time.Since(start)
	switch {
	case rtt < fastThreshold:
		return QualityFast
	case rtt < moderateThreshold:
		return QualityModerate
	default:
		return QualitySlow
	}
}

// setState is the single funnel for both probe results and external signals.
// Callbacks fire only when the boolean state genuinely flips, which debounces
// repeated same-state reports.
func (m *Monitor) setState(online bool, quality Quality) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	m.quality = quality

	var callbacks []func()
	if online && !wasOnline {
		for _, fn := range m.onOnline {
			callbacks = append(callbacks, fn)
		}
		log.Printf("[netmon] connection restored (quality=%s)", quality)
	} else if !online && wasOnline {
		for _, fn := range m.onOffline {
			callbacks = append(callbacks, fn)
		}
		log.Printf("[netmon] connection lost")
	}
	m.mu.Unlock()

	// Fired outside the lock so a callback may query the monitor.
	for _, fn := range callbacks {
		fn()
	}
}
