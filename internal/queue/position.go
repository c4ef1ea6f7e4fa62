package queue

import (
	"backend-klinik/internal/models"
)

// Aturan posisi antrian. Position berjalan terus per queue (termasuk token
// yang sudah selesai/batal), terpisah dari token_number.

// TailPosition - posisi untuk admisi biasa dan re-add: max position dari
// SEMUA token yang pernah dibuat di queue ini + 1.
func TailPosition(tokens []models.Token) int {
	max := 0
	for _, t := range tokens {
		if t.Position > max {
			max = t.Position
		}
	}
	return max + 1
}

// EmergencyPosition - slot sisip untuk token emergency: tepat setelah token
// yang sedang in_progress, atau paling depan kalau tidak ada. Pemanggil wajib
// menggeser +1 semua token waiting dengan position >= hasil fungsi ini dalam
// unit atomik yang sama.
func EmergencyPosition(tokens []models.Token) int {
	for _, t := range tokens {
		if t.Status == models.TokenInProgress {
			return t.Position + 1
		}
	}
	return 1
}

// NextWaiting memilih token waiting berikutnya: emergency dulu, lalu
// position terkecil. Nil kalau tidak ada yang menunggu.
func NextWaiting(tokens []models.Token) *models.Token {
	var best *models.Token
	for i := range tokens {
		t := &tokens[i]
		if t.Status != models.TokenWaiting {
			continue
		}
		if best == nil {
			best = t
			continue
		}
		if t.IsEmergency != best.IsEmergency {
			if t.IsEmergency {
				best = t
			}
			continue
		}
		if t.Position < best.Position {
			best = t
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}
