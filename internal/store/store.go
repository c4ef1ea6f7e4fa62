package store

import (
	"context"
	"errors"
	"time"

	"backend-klinik/internal/models"
)

// ErrNotFound dikembalikan untuk queue/token/pasien yang tidak ada.
var ErrNotFound = errors.New("record tidak ditemukan")

// Store adalah persistence layer antrian. Implementasi MySQL dipakai di
// production, implementasi memory dipakai di test dan mode dev.
type Store interface {
	// Direktori pasien: cari berdasarkan nomor telepon, buat kalau belum ada.
	FindOrCreatePatient(ctx context.Context, name, phone string) (*models.Patient, error)
	GetPatient(ctx context.Context, id int64) (*models.Patient, error)

	GetQueue(ctx context.Context, id int64) (*models.Queue, error)
	GetQueueForDay(ctx context.Context, clinicID, doctorID int64, day time.Time) (*models.Queue, error)
	CreateQueue(ctx context.Context, clinicID, doctorID int64, day time.Time) (*models.Queue, error)

	// CloseStaleQueues menutup paksa queue hari-hari sebelumnya yang masih
	// open/paused untuk (klinik, dokter): token waiting dibatalkan, status
	// jadi closed, current_token_id dikosongkan.
	CloseStaleQueues(ctx context.Context, clinicID, doctorID int64, before time.Time) (int64, error)

	GetToken(ctx context.Context, id int64) (*models.Token, error)
	ListTokens(ctx context.Context, queueID int64) ([]models.Token, error)
	CountWaiting(ctx context.Context, queueID int64) (int, error)

	// WithQueue menjalankan fn sebagai satu unit atomik yang diserialisasi
	// pada baris queue: MySQL pakai transaksi + SELECT ... FOR UPDATE,
	// memory store pakai mutex. Semua mutasi multi-langkah (call-next,
	// sisip emergency, bulk close/reopen) wajib lewat sini.
	WithQueue(ctx context.Context, queueID int64, fn func(tx QueueTx) error) error

	// Replay idempotent untuk sync engine. SetTokenStatus/SetQueueStatus
	// berpagar status asal: hanya diterapkan kalau status masih from,
	// mengembalikan false (tanpa error) kalau baris sudah bergerak ke
	// status lain.
	InsertTokenIfAbsent(ctx context.Context, t *models.Token) (bool, error)
	SetTokenStatus(ctx context.Context, tokenID int64, from, to models.TokenStatus) (bool, error)
	SetQueueStatus(ctx context.Context, queueID int64, from, to models.QueueStatus) (bool, error)
}

// QueueTx adalah API di dalam unit atomik WithQueue. Semua method bekerja
// pada queue yang sedang dikunci.
type QueueTx interface {
	// Queue mengembalikan baris queue yang terkunci. Mutasi field harus
	// di-commit lewat UpdateQueue.
	Queue() *models.Queue

	Tokens() ([]models.Token, error)
	Token(id int64) (*models.Token, error)

	InsertToken(t *models.Token) error
	UpdateToken(t *models.Token) error

	// ShiftWaiting menggeser +1 semua token waiting dengan position >= fromPos.
	ShiftWaiting(fromPos int) error

	// BulkTokenStatus memindahkan semua token berstatus from ke to,
	// mengembalikan jumlah baris yang berubah.
	BulkTokenStatus(from, to models.TokenStatus) (int64, error)

	UpdateQueue(q *models.Queue) error
}
