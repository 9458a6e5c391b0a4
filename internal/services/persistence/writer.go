package persistence

import (
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/plant_env/internal/metrics"
)

// PointWriter is the subset of influx api.WriteAPI used here.
type PointWriter interface {
	WritePoint(point *write.Point)
	Flush()
	Errors() <-chan error
}

// Writer incapsula WriteAPI e traccia l'ultimo errore di scrittura per /healthz e /readyz.
type Writer struct {
	api     PointWriter
	mu      sync.RWMutex
	lastErr time.Time
	counts  map[string]int64
	logger  *zap.Logger
	now     func() time.Time
}

// NewWriter starts draining the async error channel of w.
func NewWriter(w PointWriter, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	ww := &Writer{
		api:     w,
		lastErr: time.Now().Add(-24 * time.Hour), // di default "lontano nel tempo"
		counts:  make(map[string]int64),
		logger:  logger,
		now:     time.Now,
	}
	go func() {
		for err := range w.Errors() {
			if err != nil {
				ww.markError(err)
			}
		}
	}()
	return ww
}

func (w *Writer) markError(err error) {
	w.mu.Lock()
	w.lastErr = w.now()
	w.mu.Unlock()
	w.logger.Warn("influx write error", zap.Error(err))
}

// Write queues a point and counts it under its measurement.
func (w *Writer) Write(p *write.Point) {
	w.api.WritePoint(p)
	name := p.Name()
	w.mu.Lock()
	w.counts[name]++
	w.mu.Unlock()
	metrics.PersistedPoints.WithLabelValues(name).Inc()
}

func (w *Writer) Flush() { w.api.Flush() }

// LastErrorAge ritorna da quanto tempo non si verificano errori di scrittura.
func (w *Writer) LastErrorAge() time.Duration {
	if w == nil {
		return 99999 * time.Hour
	}
	w.mu.RLock()
	t := w.lastErr
	w.mu.RUnlock()
	return w.now().Sub(t)
}

// Count returns how many points of a measurement were written.
func (w *Writer) Count(measurement string) int64 {
	if w == nil {
		return 0
	}
	w.mu.RLock()
	c := w.counts[measurement]
	w.mu.RUnlock()
	return c
}
