package syncq

import (
	"encoding/json"
	"fmt"
	"time"

	"backend-klinik/internal/models"

	"github.com/google/uuid"
)

type RecordType string

const (
	TypeTokenStatus RecordType = "token_status"
	TypeQueueStatus RecordType = "queue_status"
	TypeTokenCreate RecordType = "token_create"
)

// Record - satu mutasi tertunda di daftar sync. Payload bertipe per jenis
// record; dispatch lewat type switch yang exhaustive, bukan payload dinamis.
type Record struct {
	ID         string          `json:"id"`
	Type       RecordType      `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Payload status membawa From: record hanya diterapkan kalau status di store
// masih sama dengan saat record dibuat. Record yang kedahuluan operasi
// store-direct sudah usang dan dibuang, bukan menimpa status yang lebih baru.
type TokenStatusPayload struct {
	TokenID int64              `json:"token_id"`
	From    models.TokenStatus `json:"from"`
	Status  models.TokenStatus `json:"status"`
}

type QueueStatusPayload struct {
	QueueID int64              `json:"queue_id"`
	From    models.QueueStatus `json:"from"`
	Status  models.QueueStatus `json:"status"`
}

type TokenCreatePayload struct {
	QueueID     int64 `json:"queue_id"`
	PatientID   int64 `json:"patient_id"`
	TokenNumber int   `json:"token_number"`
	Position    int   `json:"position"`
	IsEmergency bool  `json:"is_emergency"`
}

func newRecord(typ RecordType, payload any) (Record, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("marshal payload %s: %w", typ, err)
	}
	return Record{
		ID:         uuid.NewString(),
		Type:       typ,
		Payload:    raw,
		EnqueuedAt: time.Now(),
	}, nil
}
