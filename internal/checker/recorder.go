package checker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
)

// RecorderConfig contains check event recorder configuration.
type RecorderConfig struct {
	Buffer        int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
}

// DefaultRecorderConfig returns default recorder configuration.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		Buffer:        1024,
		BatchSize:     100,
		FlushInterval: 2 * time.Second,
		WriteTimeout:  5 * time.Second,
	}
}

// Recorder persists check events in the background. Record never blocks;
// events are dropped when the buffer is full.
type Recorder struct {
	config RecorderConfig
	writer EventWriter
	events chan domain.CheckEvent

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// NewRecorder creates a new recorder.
func NewRecorder(config RecorderConfig, writer EventWriter) *Recorder {
	return &Recorder{
		config: config,
		writer: writer,
		events: make(chan domain.CheckEvent, config.Buffer),
		done:   make(chan struct{}),
	}
}

// Record queues an event for persistence.
func (r *Recorder) Record(event domain.CheckEvent) {
	select {
	case r.events <- event:
	default:
		eventsDropped.Inc()
	}
}

// Start launches the writer goroutine.
func (r *Recorder) Start() {
	r.startOnce.Do(func() { go r.run() })
}

// Stop flushes buffered events and waits for the writer to exit. It is safe
// to call on a recorder that was never started.
func (r *Recorder) Stop() {
	r.Start()
	r.stopOnce.Do(func() { close(r.events) })
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]domain.CheckEvent, 0, r.config.BatchSize)
	for {
		select {
		case event, ok := <-r.events:
			if !ok {
				r.flush(batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= r.config.BatchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			r.flush(batch)
			batch = batch[:0]
		}
	}
}

func (r *Recorder) flush(batch []domain.CheckEvent) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	if err := r.writer.InsertCheckEvents(ctx, batch); err != nil {
		slog.Error("failed to write check events", "count", len(batch), "error", err)
		eventsDropped.Add(float64(len(batch)))
		return
	}
	eventsWritten.Add(float64(len(batch)))
}
