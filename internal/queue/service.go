package queue

import (
	"context"
	"errors"
	"log"
	"time"

	"backend-klinik/internal/cache"
	"backend-klinik/internal/models"
	"backend-klinik/internal/realtime"
	"backend-klinik/internal/store"
	"backend-klinik/internal/syncq"
)

// Service - mesin antrian konsultasi: admisi, pemanggilan, transisi status,
// lifecycle queue. Semua mutasi yang menyentuh invariant dijalankan sebagai
// satu unit atomik lewat store.WithQueue; cache dan fanout diurus setelah
// mutasi berhasil.
type Service struct {
	store store.Store
	cache *cache.Cache
	sync  *syncq.Engine
	hub   *realtime.Hub
	loc   *time.Location

	// writeBehind mengaktifkan jalur tulis cache-first untuk mutasi yang
	// tidak menyentuh current_token_id: admisi biasa (counter Redis +
	// record token_create) dan toggle pause/resume. Operasi lain selalu
	// store-direct.
	writeBehind bool
}

func NewService(st store.Store, ca *cache.Cache, sy *syncq.Engine, hub *realtime.Hub, loc *time.Location, writeBehind bool) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{store: st, cache: ca, sync: sy, hub: hub, loc: loc, writeBehind: writeBehind}
}

func (s *Service) publish(ev realtime.Event) {
	if s.hub != nil {
		s.hub.Publish(ev)
	}
}

func (s *Service) invalidate(ctx context.Context, q *models.Queue) {
	s.cache.InvalidateQueue(ctx, q)
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// checkOpen - mutasi ditolak kalau queue closed/paused.
func checkOpen(q *models.Queue) error {
	switch q.Status {
	case models.QueueClosed:
		return ErrClosed
	case models.QueuePaused:
		return ErrPaused
	}
	return nil
}

// Admit menambahkan pasien ke antrian dan memberi nomor token + posisi.
// Emergency disisipkan tepat setelah token in_progress (token waiting di
// belakangnya bergeser +1); admisi biasa menempel di ekor. Pasien yang masih
// punya token aktif di queue ini ditolak Conflict.
func (s *Service) Admit(ctx context.Context, queueID, patientID int64, isEmergency bool) (*models.Token, error) {
	if s.writeBehind && !isEmergency {
		if token, ok, err := s.admitDeferred(ctx, queueID, patientID); ok {
			return token, err
		}
	}
	return s.admitDirect(ctx, queueID, patientID, isEmergency)
}

// AdmitByContact mencari (atau membuat) pasien di direktori berdasarkan
// nomor telepon, lalu mendaftarkannya ke antrian.
func (s *Service) AdmitByContact(ctx context.Context, queueID int64, name, phone string, isEmergency bool) (*models.Token, error) {
	p, err := s.store.FindOrCreatePatient(ctx, name, phone)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return s.Admit(ctx, queueID, p.ID, isEmergency)
}

// admitDeferred - jalur cache-first: nomor token dan posisi diambil dari
// counter Redis (INCR atomik), baris token menyusul lewat sync engine.
// ok=false berarti jalur ini tidak bisa dipakai dan caller harus jatuh ke
// jalur store-direct.
func (s *Service) admitDeferred(ctx context.Context, queueID, patientID int64) (*models.Token, bool, error) {
	if !s.sync.Available() || !s.cache.Available() {
		return nil, false, nil
	}

	q, err := s.store.GetQueue(ctx, queueID)
	if err != nil {
		return nil, true, mapStoreErr(err)
	}
	if err := checkOpen(q); err != nil {
		return nil, true, err
	}

	tokens, err := s.store.ListTokens(ctx, queueID)
	if err != nil {
		return nil, true, err
	}
	if hasActiveAdmission(tokens, patientID) {
		return nil, true, ErrConflict
	}

	number, err := s.cache.NextTokenNumber(ctx, queueID)
	if err != nil {
		return nil, false, nil
	}
	position, err := s.cache.NextPosition(ctx, queueID)
	if err != nil {
		return nil, false, nil
	}

	token := &models.Token{
		QueueID:     queueID,
		PatientID:   patientID,
		TokenNumber: number,
		Status:      models.TokenWaiting,
		Position:    position,
		CreatedAt:   time.Now(),
	}

	err = s.sync.EnqueueTokenCreate(ctx, syncq.TokenCreatePayload{
		QueueID:     queueID,
		PatientID:   patientID,
		TokenNumber: number,
		Position:    position,
	})
	if err != nil {
		return nil, true, err
	}

	s.invalidate(ctx, q)
	s.publish(realtime.NewEvent(realtime.EventTokenAdded, queueID, realtime.TokenAddedData{
		TokenNumber: number,
		Position:    position,
	}))
	return token, true, nil
}

func (s *Service) admitDirect(ctx context.Context, queueID, patientID int64, isEmergency bool) (*models.Token, error) {
	// Dalam mode write-behind counter Redis adalah satu-satunya penerbit
	// nomor token: admisi emergency pun mengklaim nomornya dari counter,
	// supaya tidak bertabrakan dengan admisi deferred yang belum di-drain.
	// LastTokenNumber baru dipakai kalau Redis mati (jalur deferred mati
	// juga, jadi tidak ada penerbit kedua).
	counterNumber, counterPos := 0, 0
	if s.writeBehind && s.cache.Available() {
		if n, err := s.cache.NextTokenNumber(ctx, queueID); err == nil {
			counterNumber = n
			if p, err := s.cache.NextPosition(ctx, queueID); err == nil {
				counterPos = p
			} else {
				log.Println("[queue] klaim counter posisi queue", queueID, "gagal:", err)
			}
		} else {
			log.Println("[queue] klaim counter nomor queue", queueID, "gagal, jatuh ke store:", err)
		}
	}

	var token *models.Token
	var queue *models.Queue

	err := s.store.WithQueue(ctx, queueID, func(tx store.QueueTx) error {
		q := tx.Queue()
		if err := checkOpen(q); err != nil {
			return err
		}

		tokens, err := tx.Tokens()
		if err != nil {
			return err
		}
		if hasActiveAdmission(tokens, patientID) {
			return ErrConflict
		}

		var position int
		if isEmergency {
			position = EmergencyPosition(tokens)
			if err := tx.ShiftWaiting(position); err != nil {
				return err
			}
		} else {
			position = TailPosition(tokens)
			if counterPos > position {
				// Token deferred yang belum sampai di store sudah memegang
				// posisi ekor di bawah counterPos.
				position = counterPos
			}
		}

		number := counterNumber
		if number == 0 {
			q.LastTokenNumber++
			number = q.LastTokenNumber
		} else if number > q.LastTokenNumber {
			q.LastTokenNumber = number
		}

		token = &models.Token{
			QueueID:     queueID,
			PatientID:   patientID,
			TokenNumber: number,
			Status:      models.TokenWaiting,
			IsEmergency: isEmergency,
			Position:    position,
		}
		if err := tx.InsertToken(token); err != nil {
			return err
		}
		if err := tx.UpdateQueue(q); err != nil {
			return err
		}
		queue = q
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	s.invalidate(ctx, queue)
	s.publish(realtime.NewEvent(realtime.EventTokenAdded, queueID, realtime.TokenAddedData{
		TokenID:     token.ID,
		TokenNumber: token.TokenNumber,
		Position:    token.Position,
		IsEmergency: token.IsEmergency,
	}))
	return token, nil
}

func hasActiveAdmission(tokens []models.Token, patientID int64) bool {
	for _, t := range tokens {
		if t.PatientID == patientID && (t.Status == models.TokenWaiting || t.Status.Active()) {
			return true
		}
	}
	return false
}

// CallNext memilih token waiting terdepan (emergency dulu, lalu position
// terkecil), menandai called, dan mengisi current_token_id. Satu pemenang
// walau dipanggil bersamaan: seleksi dan update terjadi dalam satu unit
// atomik di baris queue.
func (s *Service) CallNext(ctx context.Context, queueID int64) (*models.Token, error) {
	var token *models.Token
	var queue *models.Queue

	err := s.store.WithQueue(ctx, queueID, func(tx store.QueueTx) error {
		q := tx.Queue()
		if err := checkOpen(q); err != nil {
			return err
		}
		if q.CurrentTokenID != nil {
			// Masih ada yang dilayani; selesaikan dulu.
			return ErrConflict
		}

		tokens, err := tx.Tokens()
		if err != nil {
			return err
		}
		next := NextWaiting(tokens)
		if next == nil {
			return ErrNoPatients
		}

		now := time.Now()
		next.Status = models.TokenCalled
		next.CalledAt = &now
		if err := tx.UpdateToken(next); err != nil {
			return err
		}

		q.CurrentTokenID = &next.ID
		if err := tx.UpdateQueue(q); err != nil {
			return err
		}

		token = next
		queue = q
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	s.invalidate(ctx, queue)

	patientName := ""
	if p, err := s.store.GetPatient(ctx, token.PatientID); err == nil {
		patientName = p.Name
	} else {
		log.Println("[queue] nama pasien", token.PatientID, "tidak terbaca:", err)
	}
	s.publish(realtime.NewEvent(realtime.EventTokenCalled, queueID, realtime.TokenCalledData{
		TokenID:     token.ID,
		TokenNumber: token.TokenNumber,
		IsEmergency: token.IsEmergency,
		PatientName: patientName,
	}))
	return token, nil
}

// Start memulai konsultasi: token current harus berstatus called.
func (s *Service) Start(ctx context.Context, queueID int64) (*models.Token, error) {
	token, queue, err := s.transitionCurrent(ctx, queueID, models.TokenCalled, func(t *models.Token) {
		now := time.Now()
		t.Status = models.TokenInProgress
		t.StartedAt = &now
	}, false)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, queue)
	s.publish(realtime.NewEvent(realtime.EventTokenStatus, queueID, realtime.TokenStatusData{
		TokenID:     token.ID,
		TokenNumber: token.TokenNumber,
		Status:      token.Status,
	}))
	return token, nil
}

// Complete menutup konsultasi yang sedang berjalan dan mengosongkan
// current_token_id.
func (s *Service) Complete(ctx context.Context, queueID int64) (*models.Token, error) {
	token, queue, err := s.transitionCurrent(ctx, queueID, models.TokenInProgress, func(t *models.Token) {
		now := time.Now()
		t.Status = models.TokenCompleted
		t.CompletedAt = &now
	}, true)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, queue)
	s.publish(realtime.NewEvent(realtime.EventTokenStatus, queueID, realtime.TokenStatusData{
		TokenID:     token.ID,
		TokenNumber: token.TokenNumber,
		Status:      token.Status,
	}))
	return token, nil
}

// transitionCurrent - transisi pada token yang ditunjuk current_token_id.
// Token harus berstatus from; clearCurrent mengosongkan pointer setelahnya.
func (s *Service) transitionCurrent(ctx context.Context, queueID int64, from models.TokenStatus, apply func(*models.Token), clearCurrent bool) (*models.Token, *models.Queue, error) {
	var token *models.Token
	var queue *models.Queue

	err := s.store.WithQueue(ctx, queueID, func(tx store.QueueTx) error {
		q := tx.Queue()
		if q.CurrentTokenID == nil {
			return ErrInvalidState
		}

		t, err := tx.Token(*q.CurrentTokenID)
		if err != nil {
			return err
		}
		if t.Status != from {
			return ErrInvalidState
		}

		apply(t)
		if err := tx.UpdateToken(t); err != nil {
			return err
		}

		if clearCurrent {
			q.CurrentTokenID = nil
			if err := tx.UpdateQueue(q); err != nil {
				return err
			}
		}

		token = t
		queue = q
		return nil
	})
	if err != nil {
		return nil, nil, mapStoreErr(err)
	}
	return token, queue, nil
}

// Skip mengeluarkan token dari antrian sementara. Legal dari waiting/called;
// token bisa balik lewat Readd.
func (s *Service) Skip(ctx context.Context, tokenID int64) (*models.Token, error) {
	return s.sidelineToken(ctx, tokenID, models.TokenSkipped)
}

// MarkNoShow final: pasien tidak hadir saat dipanggil. Legal dari
// waiting/called.
func (s *Service) MarkNoShow(ctx context.Context, tokenID int64) (*models.Token, error) {
	return s.sidelineToken(ctx, tokenID, models.TokenNoShow)
}

func (s *Service) sidelineToken(ctx context.Context, tokenID int64, to models.TokenStatus) (*models.Token, error) {
	seen, err := s.store.GetToken(ctx, tokenID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	// Jalur cache-first hanya untuk token yang masih waiting: tidak pernah
	// menyentuh current_token_id.
	if s.writeBehind && s.sync.Available() && seen.Status == models.TokenWaiting {
		if token, ok, err := s.sidelineDeferred(ctx, seen, to); ok {
			return token, err
		}
	}

	var token *models.Token
	var queue *models.Queue
	err = s.store.WithQueue(ctx, seen.QueueID, func(tx store.QueueTx) error {
		q := tx.Queue()
		t, err := tx.Token(tokenID)
		if err != nil {
			return err
		}
		if t.Status != models.TokenWaiting && t.Status != models.TokenCalled {
			return ErrInvalidState
		}

		t.Status = to
		if err := tx.UpdateToken(t); err != nil {
			return err
		}
		if q.CurrentTokenID != nil && *q.CurrentTokenID == t.ID {
			q.CurrentTokenID = nil
			if err := tx.UpdateQueue(q); err != nil {
				return err
			}
		}

		token = t
		queue = q
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	s.invalidate(ctx, queue)
	s.publish(realtime.NewEvent(realtime.EventTokenStatus, token.QueueID, realtime.TokenStatusData{
		TokenID:     token.ID,
		TokenNumber: token.TokenNumber,
		Status:      token.Status,
	}))
	return token, nil
}

func (s *Service) sidelineDeferred(ctx context.Context, seen *models.Token, to models.TokenStatus) (*models.Token, bool, error) {
	// From ikut dicatat: record hanya boleh diterapkan kalau token masih
	// waiting saat drain. Token yang keburu dipanggil tidak boleh ditimpa.
	err := s.sync.EnqueueTokenStatus(ctx, syncq.TokenStatusPayload{
		TokenID: seen.ID,
		From:    seen.Status,
		Status:  to,
	})
	if err != nil {
		log.Println("[queue] enqueue token_status gagal, jatuh ke store:", err)
		return nil, false, nil
	}

	if q, err := s.store.GetQueue(ctx, seen.QueueID); err == nil {
		s.invalidate(ctx, q)
	}
	token := *seen
	token.Status = to
	s.publish(realtime.NewEvent(realtime.EventTokenStatus, token.QueueID, realtime.TokenStatusData{
		TokenID:     token.ID,
		TokenNumber: token.TokenNumber,
		Status:      to,
	}))
	return &token, true, nil
}

// Cancel membatalkan token dari status non-terminal mana pun.
func (s *Service) Cancel(ctx context.Context, tokenID int64) (*models.Token, error) {
	seen, err := s.store.GetToken(ctx, tokenID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	var token *models.Token
	var queue *models.Queue
	err = s.store.WithQueue(ctx, seen.QueueID, func(tx store.QueueTx) error {
		q := tx.Queue()
		t, err := tx.Token(tokenID)
		if err != nil {
			return err
		}
		if t.Status.Terminal() {
			return ErrInvalidState
		}

		t.Status = models.TokenCancelled
		if err := tx.UpdateToken(t); err != nil {
			return err
		}
		if q.CurrentTokenID != nil && *q.CurrentTokenID == t.ID {
			q.CurrentTokenID = nil
			if err := tx.UpdateQueue(q); err != nil {
				return err
			}
		}

		token = t
		queue = q
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	s.invalidate(ctx, queue)
	s.publish(realtime.NewEvent(realtime.EventTokenCancelled, token.QueueID, realtime.TokenCancelledData{
		TokenID:     token.ID,
		TokenNumber: token.TokenNumber,
	}))
	return token, nil
}

// Readd mengembalikan token skipped ke antrian, menempel di ekor seperti
// admisi biasa. Flag emergency tidak dibawa: token yang balik antre dari
// belakang.
func (s *Service) Readd(ctx context.Context, tokenID int64) (*models.Token, error) {
	seen, err := s.store.GetToken(ctx, tokenID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	var token *models.Token
	var queue *models.Queue
	err = s.store.WithQueue(ctx, seen.QueueID, func(tx store.QueueTx) error {
		q := tx.Queue()
		if err := checkOpen(q); err != nil {
			return err
		}

		t, err := tx.Token(tokenID)
		if err != nil {
			return err
		}
		if t.Status != models.TokenSkipped {
			return ErrInvalidState
		}

		tokens, err := tx.Tokens()
		if err != nil {
			return err
		}

		t.Status = models.TokenWaiting
		t.Position = TailPosition(tokens)
		t.IsEmergency = false
		if err := tx.UpdateToken(t); err != nil {
			return err
		}

		token = t
		queue = q
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	s.invalidate(ctx, queue)
	pos := token.Position
	s.publish(realtime.NewEvent(realtime.EventTokenStatus, token.QueueID, realtime.TokenStatusData{
		TokenID:     token.ID,
		TokenNumber: token.TokenNumber,
		Status:      token.Status,
		Position:    &pos,
	}))
	return token, nil
}

// Snapshot - queue lengkap beserta tokennya, read-through cache.
func (s *Service) Snapshot(ctx context.Context, queueID int64) (*models.QueueSnapshot, error) {
	snap, err := s.cache.Snapshot(ctx, queueID, func() (*models.QueueSnapshot, error) {
		q, err := s.store.GetQueue(ctx, queueID)
		if err != nil {
			return nil, err
		}
		tokens, err := s.store.ListTokens(ctx, queueID)
		if err != nil {
			return nil, err
		}
		return &models.QueueSnapshot{Queue: *q, Tokens: tokens}, nil
	})
	return snap, mapStoreErr(err)
}

// Current - token yang sedang dilayani, nil kalau tidak ada.
func (s *Service) Current(ctx context.Context, queueID int64) (*models.Token, error) {
	tok, err := s.cache.Current(ctx, queueID, func() (*models.Token, error) {
		q, err := s.store.GetQueue(ctx, queueID)
		if err != nil {
			return nil, err
		}
		if q.CurrentTokenID == nil {
			return nil, nil
		}
		return s.store.GetToken(ctx, *q.CurrentTokenID)
	})
	return tok, mapStoreErr(err)
}

// WaitingCount - jumlah token waiting, read-through cache.
func (s *Service) WaitingCount(ctx context.Context, queueID int64) (int, error) {
	n, err := s.cache.WaitingCount(ctx, queueID, func() (int, error) {
		return s.store.CountWaiting(ctx, queueID)
	})
	return n, mapStoreErr(err)
}

// Summary - ringkasan status per (klinik, dokter, tanggal) untuk display.
func (s *Service) Summary(ctx context.Context, clinicID, doctorID int64, day time.Time) (*models.QueueSummary, error) {
	dayStr := day.Format("2006-01-02")
	sum, err := s.cache.Summary(ctx, clinicID, doctorID, dayStr, func() (*models.QueueSummary, error) {
		q, err := s.store.GetQueueForDay(ctx, clinicID, doctorID, day)
		if err != nil {
			return nil, err
		}
		waiting, err := s.store.CountWaiting(ctx, q.ID)
		if err != nil {
			return nil, err
		}
		sum := &models.QueueSummary{
			QueueID:      q.ID,
			Status:       q.Status,
			WaitingCount: waiting,
			LastNumber:   q.LastTokenNumber,
		}
		if q.CurrentTokenID != nil {
			if cur, err := s.store.GetToken(ctx, *q.CurrentTokenID); err == nil {
				sum.CurrentToken = cur
			}
		}
		return sum, nil
	})
	return sum, mapStoreErr(err)
}
