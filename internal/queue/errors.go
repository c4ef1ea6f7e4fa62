package queue

import (
	"errors"
)

// Taksonomi error engine. Semua recoverable dan dipetakan ke response
// user-facing di layer handler, tidak pernah mematikan proses.
var (
	// ErrNotFound - queue/token/pasien tidak ada.
	ErrNotFound = errors.New("tidak ditemukan")

	// ErrInvalidState - transisi dari status yang salah.
	ErrInvalidState = errors.New("status tidak valid untuk operasi ini")

	// ErrConflict - masih ada token yang sedang dilayani, atau pasien yang
	// sama sudah punya token aktif di queue ini.
	ErrConflict = errors.New("konflik dengan token aktif")

	// ErrClosed - queue sudah ditutup.
	ErrClosed = errors.New("queue sudah ditutup")

	// ErrPaused - queue sedang dijeda.
	ErrPaused = errors.New("queue sedang dijeda")

	// ErrNoPatients - call-next tanpa ada token waiting.
	ErrNoPatients = errors.New("tidak ada pasien yang menunggu")
)
