package checker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/stretchr/testify/assert"
)

type memEventWriter struct {
	mu      sync.Mutex
	events  []domain.CheckEvent
	batches int
	err     error
}

func (w *memEventWriter) InsertCheckEvents(_ context.Context, events []domain.CheckEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.events = append(w.events, events...)
	w.batches++
	return nil
}

func (w *memEventWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.events)
}

func TestRecorder_FlushesOnStop(t *testing.T) {
	writer := &memEventWriter{}
	r := NewRecorder(RecorderConfig{Buffer: 10, BatchSize: 100, FlushInterval: time.Hour, WriteTimeout: time.Second}, writer)
	r.Start()

	for i := 0; i < 3; i++ {
		r.Record(domain.CheckEvent{MonitorID: "m1", Status: domain.CheckStatusUp})
	}
	r.Stop()

	assert.Equal(t, 3, writer.count())
	assert.Equal(t, 1, writer.batches)
}

func TestRecorder_FlushesFullBatch(t *testing.T) {
	writer := &memEventWriter{}
	r := NewRecorder(RecorderConfig{Buffer: 10, BatchSize: 2, FlushInterval: time.Hour, WriteTimeout: time.Second}, writer)
	r.Start()
	defer r.Stop()

	r.Record(domain.CheckEvent{MonitorID: "m1"})
	r.Record(domain.CheckEvent{MonitorID: "m2"})

	assert.Eventually(t, func() bool { return writer.count() == 2 }, time.Second, 10*time.Millisecond)
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	writer := &memEventWriter{}
	r := NewRecorder(RecorderConfig{Buffer: 2, BatchSize: 10, FlushInterval: time.Hour, WriteTimeout: time.Second}, writer)

	// Not started: the buffer fills and further records must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			r.Record(domain.CheckEvent{MonitorID: "m1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full buffer")
	}

	r.Start()
	r.Stop()
	assert.Equal(t, 2, writer.count())
}

func TestRecorder_WriteErrorDoesNotStop(t *testing.T) {
	writer := &memEventWriter{err: errors.New("db down")}
	r := NewRecorder(RecorderConfig{Buffer: 10, BatchSize: 1, FlushInterval: time.Hour, WriteTimeout: time.Second}, writer)
	r.Start()

	r.Record(domain.CheckEvent{MonitorID: "m1"})
	r.Stop()

	assert.Equal(t, 0, writer.count())
}
