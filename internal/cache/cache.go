package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"backend-klinik/internal/models"

	"github.com/redis/go-redis/v9"
)

// TTL per jenis key. Snapshot tahan lama, data "sedang dilayani" sangat
// pendek karena berubah tiap pemanggilan.
const (
	snapshotTTL = time.Hour
	summaryTTL  = 30 * time.Second
	currentTTL  = 10 * time.Second
	waitingTTL  = 30 * time.Second
	counterTTL  = 48 * time.Hour
)

// Cache - read-through accelerator di atas Redis. Aman dipakai tanpa Redis:
// client nil atau Redis down membuat semua operasi jadi miss/no-op, caller
// jatuh ke Store. Cache tidak pernah jadi syarat correctness, cuma latensi.
type Cache struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

func (c *Cache) Available() bool {
	return c != nil && c.rdb != nil
}

func snapshotKey(queueID int64) string { return fmt.Sprintf("queue:%d:snapshot", queueID) }
func currentKey(queueID int64) string  { return fmt.Sprintf("queue:%d:current", queueID) }
func waitingKey(queueID int64) string  { return fmt.Sprintf("queue:%d:waiting", queueID) }
func tokenCtrKey(queueID int64) string { return fmt.Sprintf("queue:%d:next_token", queueID) }
func posCtrKey(queueID int64) string   { return fmt.Sprintf("queue:%d:next_pos", queueID) }

func summaryKey(clinicID, doctorID int64, day string) string {
	return fmt.Sprintf("queue:clinic:%d:doctor:%d:%s:summary", clinicID, doctorID, day)
}

// readThrough: coba cache dulu, miss atau Redis error jatuh ke load,
// hasilnya ditulis balik best-effort.
func readThrough[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if c.Available() {
		raw, err := c.rdb.Get(ctx, key).Result()
		if err == nil {
			var v T
			if err := json.Unmarshal([]byte(raw), &v); err == nil {
				return v, nil
			}
			// Isi korup: buang dan muat ulang.
			c.rdb.Del(ctx, key)
		}
	}

	v, err := load()
	if err != nil {
		return v, err
	}

	if c.Available() {
		if raw, err := json.Marshal(v); err == nil {
			if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
				log.Println("[cache] set", key, "gagal:", err)
			}
		}
	}
	return v, nil
}

func (c *Cache) Snapshot(ctx context.Context, queueID int64, load func() (*models.QueueSnapshot, error)) (*models.QueueSnapshot, error) {
	return readThrough(ctx, c, snapshotKey(queueID), snapshotTTL, load)
}

func (c *Cache) Summary(ctx context.Context, clinicID, doctorID int64, day string, load func() (*models.QueueSummary, error)) (*models.QueueSummary, error) {
	return readThrough(ctx, c, summaryKey(clinicID, doctorID, day), summaryTTL, load)
}

// Current men-cache token yang sedang dilayani; nil (tidak ada yang
// dilayani) ikut di-cache sebagai JSON null supaya tidak bolak-balik ke DB.
func (c *Cache) Current(ctx context.Context, queueID int64, load func() (*models.Token, error)) (*models.Token, error) {
	return readThrough(ctx, c, currentKey(queueID), currentTTL, load)
}

func (c *Cache) WaitingCount(ctx context.Context, queueID int64, load func() (int, error)) (int, error) {
	return readThrough(ctx, c, waitingKey(queueID), waitingTTL, load)
}

// InvalidateQueue membuang semua key turunan sebuah queue. Dipanggil setelah
// tiap mutasi; pembacaan berikutnya repopulate lewat read-through.
func (c *Cache) InvalidateQueue(ctx context.Context, q *models.Queue) {
	if !c.Available() {
		return
	}
	err := c.rdb.Del(ctx,
		snapshotKey(q.ID),
		currentKey(q.ID),
		waitingKey(q.ID),
		summaryKey(q.ClinicID, q.DoctorID, q.QueueDate.Format("2006-01-02")),
	).Err()
	if err != nil {
		log.Println("[cache] invalidate queue", q.ID, "gagal:", err)
	}
}

// SeedCounters menyiapkan counter nomor token dan posisi untuk jalur tulis
// cache-first. SETNX: tidak menimpa counter yang sudah jalan.
func (c *Cache) SeedCounters(ctx context.Context, queueID int64, lastToken, lastPos int) error {
	if !c.Available() {
		return redis.ErrClosed
	}
	if err := c.rdb.SetNX(ctx, tokenCtrKey(queueID), lastToken, counterTTL).Err(); err != nil {
		return err
	}
	return c.rdb.SetNX(ctx, posCtrKey(queueID), lastPos, counterTTL).Err()
}

// NextTokenNumber mengambil nomor token berikutnya secara atomik (INCR).
// Error kalau Redis tidak tersedia; caller jatuh ke jalur store-direct.
func (c *Cache) NextTokenNumber(ctx context.Context, queueID int64) (int, error) {
	if !c.Available() {
		return 0, redis.ErrClosed
	}
	n, err := c.rdb.Incr(ctx, tokenCtrKey(queueID)).Result()
	return int(n), err
}

func (c *Cache) NextPosition(ctx context.Context, queueID int64) (int, error) {
	if !c.Available() {
		return 0, redis.ErrClosed
	}
	n, err := c.rdb.Incr(ctx, posCtrKey(queueID)).Result()
	return int(n), err
}
