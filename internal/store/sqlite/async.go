package sqlite

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"candleview/internal/model"
	"candleview/internal/ringbuf"
)

var (
	// ErrQueueFull is returned when the async queue has no room; the record
	// is dropped.
	ErrQueueFull = errors.New("sqlite: journal queue full")

	// ErrClosed is returned by an AsyncWriter after Close.
	ErrClosed = errors.New("sqlite: journal closed")
)

type journalEntry struct {
	load    *model.LoadRecord
	overlay *model.OverlayRecord
}

// AsyncWriter queues journal records on a ring buffer and writes them from
// a single goroutine, so callers holding the session lock never wait on
// disk. It implements model.JournalWriter.
type AsyncWriter struct {
	next model.JournalWriter
	ring *ringbuf.Ring[journalEntry]

	pushMu  sync.Mutex // Ring is single-producer
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	closed  atomic.Bool
	written atomic.Int64
}

// NewAsyncWriter starts the drain goroutine. capacity is rounded up to a
// power of two.
func NewAsyncWriter(next model.JournalWriter, capacity int) *AsyncWriter {
	a := &AsyncWriter{
		next:    next,
		ring:    ringbuf.New[journalEntry](capacity),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *AsyncWriter) RecordLoad(_ context.Context, rec model.LoadRecord) error {
	return a.push(journalEntry{load: &rec})
}

func (a *AsyncWriter) RecordOverlay(_ context.Context, rec model.OverlayRecord) error {
	return a.push(journalEntry{overlay: &rec})
}

// Dropped returns how many records were rejected because the queue was full.
func (a *AsyncWriter) Dropped() uint64 { return a.ring.Overflow() }

// Written returns how many records reached the underlying writer.
func (a *AsyncWriter) Written() int64 { return a.written.Load() }

// Close drains what is queued and stops the goroutine. It does not close
// the underlying writer.
func (a *AsyncWriter) Close() error {
	a.once.Do(func() {
		// Under pushMu, so no push lands between the flag and the final drain.
		a.pushMu.Lock()
		a.closed.Store(true)
		a.pushMu.Unlock()
		close(a.done)
	})
	<-a.stopped
	return nil
}

func (a *AsyncWriter) push(e journalEntry) error {
	a.pushMu.Lock()
	if a.closed.Load() {
		a.pushMu.Unlock()
		return ErrClosed
	}
	ok := a.ring.Push(e)
	a.pushMu.Unlock()
	if !ok {
		return ErrQueueFull
	}
	select {
	case a.wake <- struct{}{}:
	default:
	}
	return nil
}

func (a *AsyncWriter) run() {
	defer close(a.stopped)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-a.done:
			a.drain()
			return
		case <-a.wake:
			a.drain()
		case <-ticker.C:
			a.drain()
		}
	}
}

func (a *AsyncWriter) drain() {
	for {
		e, ok := a.ring.Pop()
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var err error
		switch {
		case e.load != nil:
			err = a.next.RecordLoad(ctx, *e.load)
		case e.overlay != nil:
			err = a.next.RecordOverlay(ctx, *e.overlay)
		}
		cancel()
		if err != nil {
			log.Printf("[sqlite] WARNING: journal write failed: %v", err)
			continue
		}
		a.written.Add(1)
	}
}
