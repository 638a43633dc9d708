package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cnavas/warebox/pkg/logger"
)

const defaultProbeInterval = 30 * time.Second

// ProbeMonitor derives connectivity from a periodic reachability probe,
// typically the remote service's ping endpoint.
type ProbeMonitor struct {
	*notifier

	probe    func(ctx context.Context) error
	interval time.Duration
	log      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewProbeMonitor builds a monitor around the given probe function. The
// monitor starts offline until the first successful probe.
func NewProbeMonitor(probe func(ctx context.Context) error, interval time.Duration) *ProbeMonitor {
	if interval <= 0 {
		interval = defaultProbeInterval
	}

	return &ProbeMonitor{
		notifier: newNotifier(Offline),
		probe:    probe,
		interval: interval,
		log:      logger.WithModule("connectivity"),
	}
}

// Start launches the probe loop. The first probe runs immediately.
func (m *ProbeMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	go m.loop(ctx, done)
}

// Stop halts the probe loop. The last observed state remains visible.
func (m *ProbeMonitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (m *ProbeMonitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *ProbeMonitor) check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	next := Online
	if err := m.probe(probeCtx); err != nil {
		next = Offline
	}

	if next != m.State() {
		m.log.Info("connectivity changed", zap.String("state", next.String()))
	}
	m.set(next)
}
