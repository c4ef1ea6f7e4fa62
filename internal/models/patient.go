package models

import (
	"time"
)

// Patient - direktori subjek antrian. Dicari/dibuat berdasarkan nomor telepon.
type Patient struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}
