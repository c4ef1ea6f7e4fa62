package models

import (
	"time"
)

type TokenStatus string

const (
	TokenWaiting    TokenStatus = "waiting"
	TokenCalled     TokenStatus = "called"
	TokenInProgress TokenStatus = "in_progress"
	TokenCompleted  TokenStatus = "completed"
	TokenSkipped    TokenStatus = "skipped"
	TokenNoShow     TokenStatus = "no_show"
	TokenCancelled  TokenStatus = "cancelled"
)

// Terminal melaporkan apakah status sudah final.
// skipped BUKAN terminal: masih bisa balik ke waiting lewat re-add.
func (s TokenStatus) Terminal() bool {
	return s == TokenCompleted || s == TokenNoShow || s == TokenCancelled
}

// Active - token yang sedang dilayani (called atau in_progress).
func (s TokenStatus) Active() bool {
	return s == TokenCalled || s == TokenInProgress
}

// Token - nomor antrian pasien dalam satu queue.
// TokenNumber diberikan sekali saat ambil antrian, naik terus, tidak dipakai ulang.
// Position menentukan urutan pemanggilan; token emergency disisipkan, jadi
// position token waiting lain bisa bergeser.
type Token struct {
	ID          int64       `json:"id"`
	QueueID     int64       `json:"queue_id"`
	PatientID   int64       `json:"patient_id"`
	TokenNumber int         `json:"token_number"`
	Status      TokenStatus `json:"status"`
	IsEmergency bool        `json:"is_emergency"`
	Position    int         `json:"position"`
	CalledAt    *time.Time  `json:"called_at"`
	StartedAt   *time.Time  `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
