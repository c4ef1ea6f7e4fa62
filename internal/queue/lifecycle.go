package queue

import (
	"context"
	"errors"
	"log"
	"time"

	"backend-klinik/internal/helper"
	"backend-klinik/internal/models"
	"backend-klinik/internal/realtime"
	"backend-klinik/internal/store"
	"backend-klinik/internal/syncq"
)

// OpenOrGetToday mengambil queue hari ini untuk (klinik, dokter), membuat
// baru kalau belum ada. Efek samping: queue hari-hari sebelumnya yang masih
// open/paused ditutup paksa.
func (s *Service) OpenOrGetToday(ctx context.Context, clinicID, doctorID int64) (*models.Queue, error) {
	today := helper.Today(s.loc)

	q, err := s.store.GetQueueForDay(ctx, clinicID, doctorID, today)
	if err == nil {
		s.seedCounters(ctx, q)
		return q, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if n, err := s.store.CloseStaleQueues(ctx, clinicID, doctorID, today); err != nil {
		return nil, err
	} else if n > 0 {
		log.Printf("[queue] %d queue lama klinik=%d dokter=%d ditutup paksa", n, clinicID, doctorID)
	}

	q, err = s.store.CreateQueue(ctx, clinicID, doctorID, today)
	if err != nil {
		return nil, err
	}

	s.seedCounters(ctx, q)
	return q, nil
}

// seedCounters menyiapkan counter Redis untuk jalur cache-first. Best
// effort: tanpa Redis, jalur deferred memang tidak dipakai.
func (s *Service) seedCounters(ctx context.Context, q *models.Queue) {
	if !s.writeBehind || !s.cache.Available() {
		return
	}

	lastPos := 0
	if tokens, err := s.store.ListTokens(ctx, q.ID); err == nil {
		lastPos = TailPosition(tokens) - 1
	}
	if err := s.cache.SeedCounters(ctx, q.ID, q.LastTokenNumber, lastPos); err != nil {
		log.Println("[queue] seed counter queue", q.ID, "gagal:", err)
	}
}

// Pause menjeda queue yang open. Gagal Closed kalau sudah ditutup.
func (s *Service) Pause(ctx context.Context, queueID int64) (*models.Queue, error) {
	return s.toggleStatus(ctx, queueID, models.QueueOpen, models.QueuePaused, realtime.EventQueuePaused)
}

// Resume membuka kembali queue yang dijeda.
func (s *Service) Resume(ctx context.Context, queueID int64) (*models.Queue, error) {
	return s.toggleStatus(ctx, queueID, models.QueuePaused, models.QueueOpen, realtime.EventQueueResumed)
}

func (s *Service) toggleStatus(ctx context.Context, queueID int64, from, to models.QueueStatus, eventType string) (*models.Queue, error) {
	// Toggle tidak menyentuh token maupun current_token_id, jadi boleh
	// lewat jalur cache-first kalau aktif.
	if s.writeBehind && s.sync.Available() {
		if q, ok, err := s.toggleDeferred(ctx, queueID, from, to, eventType); ok {
			return q, err
		}
	}

	var queue *models.Queue
	err := s.store.WithQueue(ctx, queueID, func(tx store.QueueTx) error {
		q := tx.Queue()
		if q.Status == models.QueueClosed {
			return ErrClosed
		}
		if q.Status != from {
			return ErrInvalidState
		}
		q.Status = to
		if err := tx.UpdateQueue(q); err != nil {
			return err
		}
		queue = q
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	s.invalidate(ctx, queue)
	s.publish(realtime.NewEvent(eventType, queueID, nil))
	return queue, nil
}

func (s *Service) toggleDeferred(ctx context.Context, queueID int64, from, to models.QueueStatus, eventType string) (*models.Queue, bool, error) {
	q, err := s.store.GetQueue(ctx, queueID)
	if err != nil {
		return nil, true, mapStoreErr(err)
	}
	if q.Status == models.QueueClosed {
		return nil, true, ErrClosed
	}
	if q.Status != from {
		return nil, true, ErrInvalidState
	}

	err = s.sync.EnqueueQueueStatus(ctx, syncq.QueueStatusPayload{QueueID: queueID, From: from, Status: to})
	if err != nil {
		log.Println("[queue] enqueue queue_status gagal, jatuh ke store:", err)
		return nil, false, nil
	}

	q.Status = to
	s.invalidate(ctx, q)
	s.publish(realtime.NewEvent(eventType, queueID, nil))
	return q, true, nil
}

// Close menutup queue: semua token waiting dibatalkan, current_token_id
// dikosongkan. Operasi bulk ini satu unit atomik.
func (s *Service) Close(ctx context.Context, queueID int64) (*models.Queue, error) {
	var queue *models.Queue
	var stats models.CloseStats

	err := s.store.WithQueue(ctx, queueID, func(tx store.QueueTx) error {
		q := tx.Queue()
		if q.Status == models.QueueClosed {
			return ErrClosed
		}

		tokens, err := tx.Tokens()
		if err != nil {
			return err
		}
		for _, t := range tokens {
			if t.Status == models.TokenCompleted {
				stats.Completed++
			}
		}

		cancelled, err := tx.BulkTokenStatus(models.TokenWaiting, models.TokenCancelled)
		if err != nil {
			return err
		}
		stats.Cancelled = int(cancelled)

		q.Status = models.QueueClosed
		q.CurrentTokenID = nil
		if err := tx.UpdateQueue(q); err != nil {
			return err
		}
		queue = q
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	s.invalidate(ctx, queue)
	s.publish(realtime.NewEvent(realtime.EventQueueClosed, queueID, realtime.QueueStatsData{Stats: stats}))
	return queue, nil
}

// Reopen membuka lagi queue yang ditutup, hanya di hari yang sama. Semua
// token cancelled di queue ini balik ke waiting - termasuk yang dibatalkan
// satu-satu sebelum Close, bukan hanya korban Close (perilaku sistem asal).
func (s *Service) Reopen(ctx context.Context, queueID int64) (*models.Queue, error) {
	var queue *models.Queue
	var stats models.CloseStats

	err := s.store.WithQueue(ctx, queueID, func(tx store.QueueTx) error {
		q := tx.Queue()
		if q.Status != models.QueueClosed {
			return ErrInvalidState
		}
		if !helper.SameDay(q.QueueDate, time.Now(), s.loc) {
			return ErrInvalidState
		}

		restored, err := tx.BulkTokenStatus(models.TokenCancelled, models.TokenWaiting)
		if err != nil {
			return err
		}
		stats.Restored = int(restored)

		q.Status = models.QueueOpen
		if err := tx.UpdateQueue(q); err != nil {
			return err
		}
		queue = q
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	s.invalidate(ctx, queue)
	s.publish(realtime.NewEvent(realtime.EventQueueReopened, queueID, realtime.QueueStatsData{Stats: stats}))
	return queue, nil
}
