package perfbuf

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Manager owns the set of named logical perf buffers. Each logical buffer
// is one ring per online CPU sharing a callback set, multiplexed by one
// Epoller. Lifecycle per buffer: Closed -> Open -> Closed.
type Manager struct {
	config *Config
	logger *zap.Logger

	mu      sync.Mutex
	buffers map[string]*Buffer

	// OTEL metrics
	samplesDelivered metric.Int64Counter
	lostEvents       metric.Int64Counter
	bytesConsumed    metric.Int64Counter
	corruptFrames    metric.Int64Counter
}

// NewManager creates a manager. A nil config selects defaults; a nil
// logger disables logging.
func NewManager(cfg *Config, logger *zap.Logger) (*Manager, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		config:  cfg,
		logger:  logger,
		buffers: make(map[string]*Buffer),
	}

	meter := otel.Meter("perfpoll-manager")
	var err error
	m.samplesDelivered, err = meter.Int64Counter(
		"perfpoll_samples_delivered_total",
		metric.WithDescription("Frames delivered to callbacks"),
	)
	if err != nil {
		logger.Warn("Failed to create samples counter", zap.Error(err))
	}
	m.lostEvents, err = meter.Int64Counter(
		"perfpoll_lost_events_total",
		metric.WithDescription("Events reported lost by the producer"),
	)
	if err != nil {
		logger.Warn("Failed to create lost events counter", zap.Error(err))
	}
	m.bytesConsumed, err = meter.Int64Counter(
		"perfpoll_bytes_consumed_total",
		metric.WithDescription("Bytes consumed from rings"),
	)
	if err != nil {
		logger.Warn("Failed to create bytes counter", zap.Error(err))
	}
	m.corruptFrames, err = meter.Int64Counter(
		"perfpoll_corrupt_frames_total",
		metric.WithDescription("Drains aborted on a corrupt frame"),
	)
	if err != nil {
		logger.Warn("Failed to create corrupt frames counter", zap.Error(err))
	}

	return m, nil
}

// Open creates one ring per online CPU for the named buffer, registers
// them with a fresh Epoller, and returns the poll handle. Opening fails
// atomically: if any ring cannot be created, everything opened by this
// call is released before the error is returned.
func (m *Manager) Open(name string, pageCount int, cb Callbacks) (*Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.buffers[name]; ok {
		return nil, fmt.Errorf("buffer %q: %w", name, ErrAlreadyOpen)
	}
	if pageCount <= 0 || pageCount&(pageCount-1) != 0 {
		return nil, ErrInvalidPageCount
	}

	ep, err := NewEpoller(m.config.MaxEpollEvents)
	if err != nil {
		return nil, fmt.Errorf("buffer %q: %w", name, err)
	}

	var rings []*Ring
	unwind := func() {
		for _, r := range rings {
			if cerr := r.Close(); cerr != nil {
				m.logger.Warn("Failed to close ring during unwind", zap.Error(cerr))
			}
		}
		if cerr := ep.Close(); cerr != nil {
			m.logger.Warn("Failed to close epoller during unwind", zap.Error(cerr))
		}
	}

	for _, cpu := range onlineCPUs() {
		memFD, eventFD, err := m.config.Source.CreateRing(cpu, pageCount)
		if err != nil {
			unwind()
			return nil, fmt.Errorf("buffer %q: create ring for cpu %d: %w", name, cpu, err)
		}
		r, err := OpenRing(memFD, eventFD, pageCount)
		if err != nil {
			unwind()
			return nil, fmt.Errorf("buffer %q: open ring for cpu %d: %w", name, cpu, err)
		}
		if err := ep.Register(r); err != nil {
			if cerr := r.Close(); cerr != nil {
				m.logger.Warn("Failed to close ring during unwind", zap.Error(cerr))
			}
			unwind()
			return nil, fmt.Errorf("buffer %q: register ring for cpu %d: %w", name, cpu, err)
		}
		rings = append(rings, r)
	}

	buf := &Buffer{
		name:      name,
		pageCount: pageCount,
		callbacks: cb,
		rings:     rings,
		epoller:   ep,
		consumer:  NewConsumer(),
		manager:   m,
	}
	m.buffers[name] = buf

	m.logger.Info("Perf buffer opened",
		zap.String("name", name),
		zap.Int("rings", len(rings)),
		zap.Int("pages", pageCount),
	)
	return buf, nil
}

// Get looks up the handle of an open buffer.
func (m *Manager) Get(name string) (*Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.buffers[name]
	if !ok {
		return nil, fmt.Errorf("buffer %q: %w", name, ErrNotOpen)
	}
	return buf, nil
}

// Close tears down the named buffer: wakes any in-flight poll, waits for
// it to finish, unregisters and closes every ring. Unknown or
// already-closed names fail with ErrNotOpen and have no side effects.
func (m *Manager) Close(name string) error {
	m.mu.Lock()
	buf, ok := m.buffers[name]
	if ok {
		delete(m.buffers, name)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("buffer %q: %w", name, ErrNotOpen)
	}
	buf.close(m.logger)
	m.logger.Info("Perf buffer closed", zap.String("name", name))
	return nil
}

// Shutdown closes every open buffer.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	buffers := make([]*Buffer, 0, len(m.buffers))
	for _, buf := range m.buffers {
		buffers = append(buffers, buf)
	}
	m.buffers = make(map[string]*Buffer)
	m.mu.Unlock()

	for _, buf := range buffers {
		buf.close(m.logger)
		m.logger.Info("Perf buffer closed", zap.String("name", buf.name))
	}
}

func (m *Manager) recordDrain(name string, stats DrainStats) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("buffer", name))
	if m.samplesDelivered != nil {
		m.samplesDelivered.Add(ctx, int64(stats.Frames), attrs)
	}
	if m.lostEvents != nil {
		m.lostEvents.Add(ctx, int64(stats.Lost), attrs)
	}
	if m.bytesConsumed != nil {
		m.bytesConsumed.Add(ctx, int64(stats.Bytes), attrs)
	}
}

func (m *Manager) recordCorrupt(name string) {
	if m.corruptFrames != nil {
		m.corruptFrames.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("buffer", name)))
	}
}

// Buffer is the poll handle for one open logical buffer.
type Buffer struct {
	name      string
	pageCount int
	callbacks Callbacks
	rings     []*Ring
	epoller   *Epoller
	consumer  *Consumer
	manager   *Manager

	pollMu sync.Mutex
	closed atomic.Bool
}

// Name returns the buffer name.
func (b *Buffer) Name() string {
	return b.name
}

// Rings exposes the per-CPU rings, in CPU order. Writer-side users (the
// producer simulator) attach here.
func (b *Buffer) Rings() []*Ring {
	return b.rings
}

// Capacity returns the per-ring data capacity in bytes.
func (b *Buffer) Capacity() uint64 {
	if len(b.rings) == 0 {
		return 0
	}
	return b.rings[0].Capacity()
}

// Wakeup forces an in-flight Poll on this buffer to return promptly.
func (b *Buffer) Wakeup() error {
	return b.epoller.Wakeup()
}

// Poll waits for readiness, then drains each ready ring exactly once,
// bounded per ring by the head snapshot taken at drain start. Returns the
// number of distinct rings that delivered at least one frame, which caps
// the bytes delivered by one call at readyCount times the ring capacity.
// timeoutMs follows Epoller.Wait semantics: 0 blocks until activity or
// Wakeup. Concurrent Poll on the same handle is a caller error and fails
// with ErrBusy.
//
// A corrupt frame aborts that ring's drain for this call only; remaining
// ready rings are still drained and the error is returned alongside the
// count. The tail of the affected ring is not advanced, so the error
// recurs until the condition is resolved externally.
func (b *Buffer) Poll(timeoutMs int) (int, error) {
	if !b.pollMu.TryLock() {
		return 0, ErrBusy
	}
	defer b.pollMu.Unlock()
	if b.closed.Load() {
		return 0, ErrNotOpen
	}

	ready, err := b.epoller.Wait(timeoutMs)
	if err != nil {
		return 0, fmt.Errorf("buffer %q: %w", b.name, err)
	}

	readyCount := 0
	var drainErr error
	for _, r := range ready {
		r.clearReadiness()
		stats, err := b.consumer.DrainOnce(r, b.callbacks)
		b.manager.recordDrain(b.name, stats)
		if stats.Frames > 0 {
			readyCount++
		}
		if err != nil {
			b.manager.recordCorrupt(b.name)
			b.manager.logger.Warn("Drain aborted",
				zap.String("buffer", b.name),
				zap.Uint64("tail", r.Tail()),
				zap.Error(err),
			)
			if drainErr == nil {
				drainErr = err
			}
		}
	}
	return readyCount, drainErr
}

// close wakes any in-flight poll, waits for it to drain out, then
// releases rings and the epoller. Release failures are logged and do not
// block the transition to Closed.
func (b *Buffer) close(logger *zap.Logger) {
	b.closed.Store(true)
	if err := b.epoller.Wakeup(); err != nil {
		logger.Warn("Failed to wake poller", zap.String("buffer", b.name), zap.Error(err))
	}

	// Excludes new polls and waits out the in-flight one.
	b.pollMu.Lock()
	defer b.pollMu.Unlock()

	for _, r := range b.rings {
		if err := b.epoller.Unregister(r); err != nil {
			logger.Warn("Failed to unregister ring", zap.String("buffer", b.name), zap.Error(err))
		}
		if err := r.Close(); err != nil {
			logger.Warn("Failed to close ring", zap.String("buffer", b.name), zap.Error(err))
		}
	}
	if err := b.epoller.Close(); err != nil {
		logger.Warn("Failed to close epoller", zap.String("buffer", b.name), zap.Error(err))
	}
}
