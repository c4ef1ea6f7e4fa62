package syncq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"backend-klinik/internal/models"
	"backend-klinik/internal/store"

	"github.com/redis/go-redis/v9"
)

const (
	// PendingKey - Redis list berisi record mutasi yang belum diterapkan.
	PendingKey = "sync:pending"

	// DefaultBatch - maksimal record yang diproses per tick.
	DefaultBatch = 20

	// DefaultInterval - jeda antar tick drain loop.
	DefaultInterval = 5 * time.Second
)

// ErrUnavailable - engine tidak punya Redis, jalur cache-first tidak bisa
// dipakai dan caller harus menulis langsung ke store.
var ErrUnavailable = errors.New("sync engine tidak tersedia")

// Engine mengalirkan mutasi tertunda dari Redis ke store. Record di-apply
// satu per satu; record yang gagal ditinggal di list untuk tick berikutnya
// tanpa menahan atau menghilangkan sisa batch (at-least-once, apply harus
// idempotent).
type Engine struct {
	rdb      *redis.Client
	store    store.Store
	batch    int
	interval time.Duration

	// Satu tick in-flight pada satu waktu; tick yang masih jalan menekan
	// tick berikutnya.
	busy atomic.Bool
}

func NewEngine(rdb *redis.Client, st store.Store, batch int, interval time.Duration) *Engine {
	if batch <= 0 {
		batch = DefaultBatch
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Engine{rdb: rdb, store: st, batch: batch, interval: interval}
}

func (e *Engine) Available() bool {
	return e != nil && e.rdb != nil
}

func (e *Engine) enqueue(ctx context.Context, rec Record) error {
	if !e.Available() {
		return ErrUnavailable
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return e.rdb.RPush(ctx, PendingKey, string(raw)).Err()
}

func (e *Engine) EnqueueTokenCreate(ctx context.Context, p TokenCreatePayload) error {
	rec, err := newRecord(TypeTokenCreate, p)
	if err != nil {
		return err
	}
	return e.enqueue(ctx, rec)
}

func (e *Engine) EnqueueTokenStatus(ctx context.Context, p TokenStatusPayload) error {
	rec, err := newRecord(TypeTokenStatus, p)
	if err != nil {
		return err
	}
	return e.enqueue(ctx, rec)
}

func (e *Engine) EnqueueQueueStatus(ctx context.Context, p QueueStatusPayload) error {
	rec, err := newRecord(TypeQueueStatus, p)
	if err != nil {
		return err
	}
	return e.enqueue(ctx, rec)
}

// Pending - jumlah record yang belum diterapkan.
func (e *Engine) Pending(ctx context.Context) (int64, error) {
	if !e.Available() {
		return 0, nil
	}
	return e.rdb.LLen(ctx, PendingKey).Result()
}

// Run menjalankan drain loop sampai ctx selesai. Dipanggil sebagai goroutine
// dari main; saat shutdown caller lanjut ke Drain.
func (e *Engine) Run(ctx context.Context) {
	if !e.Available() {
		return
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.busy.CompareAndSwap(false, true) {
				continue
			}
			if _, err := e.tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Println("[syncq] tick gagal:", err)
			}
			e.busy.Store(false)
		}
	}
}

// tick membaca maksimal satu batch dari depan list, menerapkan tiap record,
// dan menghapus hanya record yang berhasil. Record gagal tetap di tempatnya
// dan dicoba ulang tick berikutnya.
func (e *Engine) tick(ctx context.Context) (applied int, err error) {
	raws, err := e.rdb.LRange(ctx, PendingKey, 0, int64(e.batch-1)).Result()
	if err != nil {
		return 0, fmt.Errorf("baca %s: %w", PendingKey, err)
	}

	for _, raw := range raws {
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			// Record tidak bisa dibaca sama sekali: buang supaya tidak
			// menyumbat list selamanya.
			log.Println("[syncq] record korup dibuang:", err)
			e.rdb.LRem(ctx, PendingKey, 1, raw)
			continue
		}

		if err := e.apply(ctx, rec); err != nil {
			log.Printf("[syncq] record %s (%s) gagal, dicoba lagi tick berikutnya: %v", rec.ID, rec.Type, err)
			continue
		}

		if err := e.rdb.LRem(ctx, PendingKey, 1, raw).Err(); err != nil {
			return applied, fmt.Errorf("hapus record %s: %w", rec.ID, err)
		}
		applied++
	}

	return applied, nil
}

// Drain memproses list sampai kosong. Dipanggil saat shutdown supaya tidak
// ada mutasi tertunda yang hilang. Berhenti dengan error kalau satu putaran
// penuh tidak menghasilkan kemajuan (record macet permanen).
func (e *Engine) Drain(ctx context.Context) error {
	if !e.Available() {
		return nil
	}

	for {
		n, err := e.rdb.LLen(ctx, PendingKey).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		applied, err := e.tick(ctx)
		if err != nil {
			return err
		}
		if applied == 0 {
			return fmt.Errorf("drain macet: %d record tidak bisa diterapkan", n)
		}
	}
}

// apply menerapkan satu record ke store. Type switch exhaustive: tipe baru
// wajib ditangani di sini.
func (e *Engine) apply(ctx context.Context, rec Record) error {
	switch rec.Type {
	case TypeTokenCreate:
		var p TokenCreatePayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return err
		}
		created, err := e.store.InsertTokenIfAbsent(ctx, &models.Token{
			QueueID:     p.QueueID,
			PatientID:   p.PatientID,
			TokenNumber: p.TokenNumber,
			Status:      models.TokenWaiting,
			IsEmergency: p.IsEmergency,
			Position:    p.Position,
		})
		if err == nil && !created {
			log.Printf("[syncq] token_create queue=%d nomor=%d sudah ada, redelivery diabaikan", p.QueueID, p.TokenNumber)
		}
		return err

	case TypeTokenStatus:
		var p TokenStatusPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return err
		}
		applied, err := e.store.SetTokenStatus(ctx, p.TokenID, p.From, p.Status)
		if err != nil {
			return err
		}
		if !applied {
			log.Printf("[syncq] token_status %d: token sudah bukan %s, record usang dibuang", p.TokenID, p.From)
		}
		return nil

	case TypeQueueStatus:
		var p QueueStatusPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return err
		}
		applied, err := e.store.SetQueueStatus(ctx, p.QueueID, p.From, p.Status)
		if err != nil {
			return err
		}
		if !applied {
			log.Printf("[syncq] queue_status %d: queue sudah bukan %s, record usang dibuang", p.QueueID, p.From)
		}
		return nil

	default:
		return fmt.Errorf("tipe record tidak dikenal: %q", rec.Type)
	}
}
