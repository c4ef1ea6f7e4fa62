package models

import (
	"time"
)

type QueueStatus string

const (
	QueueOpen   QueueStatus = "open"
	QueuePaused QueueStatus = "paused"
	QueueClosed QueueStatus = "closed"
)

// Queue - antrian konsultasi per (klinik, dokter, tanggal).
// CurrentTokenID menunjuk token yang sedang called/in_progress, maksimal satu.
type Queue struct {
	ID              int64       `json:"id"`
	ClinicID        int64       `json:"clinic_id"`
	DoctorID        int64       `json:"doctor_id"`
	QueueDate       time.Time   `json:"queue_date"`
	Status          QueueStatus `json:"status"`
	CurrentTokenID  *int64      `json:"current_token_id"`
	LastTokenNumber int         `json:"last_token_number"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// QueueSummary - ringkasan status antrian untuk display board.
type QueueSummary struct {
	QueueID      int64       `json:"queue_id"`
	Status       QueueStatus `json:"status"`
	WaitingCount int         `json:"waiting_count"`
	LastNumber   int         `json:"last_number"`
	CurrentToken *Token      `json:"current_token,omitempty"`
}

// QueueSnapshot - queue lengkap dengan semua token hari ini.
type QueueSnapshot struct {
	Queue  Queue   `json:"queue"`
	Tokens []Token `json:"tokens"`
}

// CloseStats dilaporkan lewat event queue:closed / queue:reopened.
type CloseStats struct {
	Cancelled int `json:"cancelled"`
	Completed int `json:"completed"`
	Restored  int `json:"restored,omitempty"`
}
