package chatsync

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Connectivity reports whether the shared store is reachable and pushes transitions.
type Connectivity interface {
	Online() bool
	// Subscribe registers fn for online/offline transitions; the returned func unsubscribes.
	Subscribe(fn func(online bool)) func()
}

// StaticMonitor connectivity set by hand (CLI flags, tests). Listeners run only on transitions.
type StaticMonitor struct {
	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	nextID int
}

func NewStaticMonitor(online bool) *StaticMonitor {
	return &StaticMonitor{online: online, subs: make(map[int]func(bool))}
}

var _ Connectivity = (*StaticMonitor)(nil)

func (m *StaticMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *StaticMonitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// SetOnline updates the state and notifies listeners when it changed.
func (m *StaticMonitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(online)
	}
}

// ProbeFunc reports reachability.
type ProbeFunc func(ctx context.Context) bool

// ProbeMonitor polls a probe and emits transitions.
type ProbeMonitor struct {
	*StaticMonitor
	probe    ProbeFunc
	interval time.Duration
	logger   *zap.Logger
}

func NewProbeMonitor(probe ProbeFunc, interval time.Duration, logger *zap.Logger) *ProbeMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &ProbeMonitor{StaticMonitor: NewStaticMonitor(false), probe: probe, interval: interval, logger: logger}
}

// Check runs the probe once and applies the result.
func (m *ProbeMonitor) Check(ctx context.Context) bool {
	online := m.probe(ctx)
	if online != m.Online() {
		m.logger.Info("Connectivity changed", zap.Bool("online", online))
	}
	m.SetOnline(online)
	return online
}

// Run probes until ctx is done.
func (m *ProbeMonitor) Run(ctx context.Context) {
	m.Check(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// HTTPProbe treats any 2xx from baseURL+path as online.
func HTTPProbe(baseURL, path string, timeout time.Duration) ProbeFunc {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout)
	return func(ctx context.Context) bool {
		resp, err := client.R().SetContext(ctx).Get(path)
		if err != nil {
			return false
		}
		return resp.StatusCode() >= http.StatusOK && resp.StatusCode() < http.StatusMultipleChoices
	}
}
