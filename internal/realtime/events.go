package realtime

import (
	"time"

	"backend-klinik/internal/models"

	"github.com/google/uuid"
)

// Tipe event yang disiarkan per queue. Payload minimal, bukan entity penuh.
const (
	EventTokenAdded     = "token:added"
	EventTokenCalled    = "token:called"
	EventTokenStatus    = "token:status"
	EventTokenCancelled = "token:cancelled"
	EventQueuePaused    = "queue:paused"
	EventQueueResumed   = "queue:resumed"
	EventQueueClosed    = "queue:closed"
	EventQueueReopened  = "queue:reopened"
)

type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	QueueID   int64     `json:"queue_id"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEvent(typ string, queueID int64, data any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		QueueID:   queueID,
		Data:      data,
		Timestamp: time.Now(),
	}
}

type TokenAddedData struct {
	TokenID     int64 `json:"token_id"`
	TokenNumber int   `json:"token_number"`
	Position    int   `json:"position"`
	IsEmergency bool  `json:"is_emergency"`
}

type TokenCalledData struct {
	TokenID     int64  `json:"token_id"`
	TokenNumber int    `json:"token_number"`
	IsEmergency bool   `json:"is_emergency"`
	PatientName string `json:"patient_name"`
}

type TokenStatusData struct {
	TokenID     int64              `json:"token_id"`
	TokenNumber int                `json:"token_number"`
	Status      models.TokenStatus `json:"status"`
	Position    *int               `json:"position,omitempty"`
}

type TokenCancelledData struct {
	TokenID     int64 `json:"token_id"`
	TokenNumber int   `json:"token_number"`
}

type QueueStatsData struct {
	Stats models.CloseStats `json:"stats"`
}
