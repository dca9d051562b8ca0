package repositories

import (
	"context"
	"log"
	"sync"
	"time"

	"sync-service/internal/models"
	"sync-service/internal/observability"
)

// HistoryRecorder writes play records in the background so that group
// actions never wait on the database.
type HistoryRecorder struct {
	repo    PlayHistoryRepository
	records chan models.PlayRecord
	done    chan struct{}
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewHistoryRecorder starts a writer draining up to buffer pending records.
func NewHistoryRecorder(repo PlayHistoryRepository, buffer int) *HistoryRecorder {
	if buffer <= 0 {
		buffer = 256
	}
	r := &HistoryRecorder{
		repo:    repo,
		records: make(chan models.PlayRecord, buffer),
		done:    make(chan struct{}),
		timeout: 5 * time.Second,
	}
	go r.run()
	return r
}

// Record enqueues rec. When the buffer is full the record is dropped.
func (r *HistoryRecorder) Record(rec models.PlayRecord) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.records <- rec:
	default:
		observability.IncHistoryWriteError()
		log.Printf("play history dropped group_id=%s queue_item_id=%s: buffer full", rec.GroupID, rec.QueueItemID)
	}
}

// Close flushes pending records and stops the writer.
func (r *HistoryRecorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.records)
	r.mu.Unlock()
	<-r.done
}

func (r *HistoryRecorder) run() {
	defer close(r.done)
	for rec := range r.records {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.repo.Insert(ctx, rec); err != nil {
			observability.IncHistoryWriteError()
			log.Printf("play history write failed group_id=%s queue_item_id=%s: %v", rec.GroupID, rec.QueueItemID, err)
		}
		cancel()
	}
}
