package store

import (
	"context"
	"sync"
	"time"

	"backend-klinik/internal/models"
)

// MemoryStore - implementasi Store di memori. Dipakai di test dan mode dev
// (STORE_DRIVER=memory). Satu mutex untuk semua data: WithQueue jadi unit
// atomik persis seperti transaksi + row lock di MySQL.
type MemoryStore struct {
	mu sync.Mutex

	patients map[int64]*models.Patient
	queues   map[int64]*models.Queue
	tokens   map[int64]*models.Token

	nextPatientID int64
	nextQueueID   int64
	nextTokenID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patients: make(map[int64]*models.Patient),
		queues:   make(map[int64]*models.Queue),
		tokens:   make(map[int64]*models.Token),
	}
}

func clonePatient(p *models.Patient) *models.Patient {
	cp := *p
	return &cp
}

func cloneQueue(q *models.Queue) *models.Queue {
	cq := *q
	if q.CurrentTokenID != nil {
		id := *q.CurrentTokenID
		cq.CurrentTokenID = &id
	}
	return &cq
}

func cloneToken(t *models.Token) *models.Token {
	ct := *t
	if t.CalledAt != nil {
		v := *t.CalledAt
		ct.CalledAt = &v
	}
	if t.StartedAt != nil {
		v := *t.StartedAt
		ct.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		ct.CompletedAt = &v
	}
	return &ct
}

func (s *MemoryStore) FindOrCreatePatient(ctx context.Context, name, phone string) (*models.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.patients {
		if p.Phone == phone {
			return clonePatient(p), nil
		}
	}

	s.nextPatientID++
	p := &models.Patient{
		ID:        s.nextPatientID,
		Name:      name,
		Phone:     phone,
		CreatedAt: time.Now(),
	}
	s.patients[p.ID] = p
	return clonePatient(p), nil
}

func (s *MemoryStore) GetPatient(ctx context.Context, id int64) (*models.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePatient(p), nil
}

func (s *MemoryStore) GetQueue(ctx context.Context, id int64) (*models.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneQueue(q), nil
}

func (s *MemoryStore) GetQueueForDay(ctx context.Context, clinicID, doctorID int64, day time.Time) (*models.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queueForDayLocked(clinicID, doctorID, day)
	if q == nil {
		return nil, ErrNotFound
	}
	return cloneQueue(q), nil
}

func (s *MemoryStore) queueForDayLocked(clinicID, doctorID int64, day time.Time) *models.Queue {
	want := day.Format("2006-01-02")
	for _, q := range s.queues {
		if q.ClinicID == clinicID && q.DoctorID == doctorID && q.QueueDate.Format("2006-01-02") == want {
			return q
		}
	}
	return nil
}

func (s *MemoryStore) CreateQueue(ctx context.Context, clinicID, doctorID int64, day time.Time) (*models.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q := s.queueForDayLocked(clinicID, doctorID, day); q != nil {
		return cloneQueue(q), nil
	}

	s.nextQueueID++
	now := time.Now()
	q := &models.Queue{
		ID:        s.nextQueueID,
		ClinicID:  clinicID,
		DoctorID:  doctorID,
		QueueDate: day,
		Status:    models.QueueOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.queues[q.ID] = q
	return cloneQueue(q), nil
}

func (s *MemoryStore) CloseStaleQueues(ctx context.Context, clinicID, doctorID int64, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := before.Format("2006-01-02")
	var closed int64
	for _, q := range s.queues {
		if q.ClinicID != clinicID || q.DoctorID != doctorID {
			continue
		}
		if q.Status == models.QueueClosed || q.QueueDate.Format("2006-01-02") >= limit {
			continue
		}
		for _, t := range s.tokens {
			if t.QueueID == q.ID && t.Status == models.TokenWaiting {
				t.Status = models.TokenCancelled
				t.UpdatedAt = time.Now()
			}
		}
		q.Status = models.QueueClosed
		q.CurrentTokenID = nil
		q.UpdatedAt = time.Now()
		closed++
	}
	return closed, nil
}

func (s *MemoryStore) GetToken(ctx context.Context, id int64) (*models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneToken(t), nil
}

func (s *MemoryStore) ListTokens(ctx context.Context, queueID int64) ([]models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listTokensLocked(queueID), nil
}

func (s *MemoryStore) listTokensLocked(queueID int64) []models.Token {
	tokens := []models.Token{}
	for _, t := range s.tokens {
		if t.QueueID == queueID {
			tokens = append(tokens, *cloneToken(t))
		}
	}
	// Urutan stabil berdasarkan position, seperti ORDER BY di MySQL.
	for i := 1; i < len(tokens); i++ {
		for j := i; j > 0 && tokens[j-1].Position > tokens[j].Position; j-- {
			tokens[j-1], tokens[j] = tokens[j], tokens[j-1]
		}
	}
	return tokens
}

func (s *MemoryStore) CountWaiting(ctx context.Context, queueID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.tokens {
		if t.QueueID == queueID && t.Status == models.TokenWaiting {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) WithQueue(ctx context.Context, queueID int64, fn func(tx QueueTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[queueID]
	if !ok {
		return ErrNotFound
	}

	return fn(&memQueueTx{store: s, queue: cloneQueue(q)})
}

type memQueueTx struct {
	store *memoryTxStore
	queue *models.Queue
}

// memoryTxStore alias supaya method tx tetap dekat dengan MemoryStore.
type memoryTxStore = MemoryStore

func (m *memQueueTx) Queue() *models.Queue { return m.queue }

func (m *memQueueTx) Tokens() ([]models.Token, error) {
	return m.store.listTokensLocked(m.queue.ID), nil
}

func (m *memQueueTx) Token(id int64) (*models.Token, error) {
	t, ok := m.store.tokens[id]
	if !ok || t.QueueID != m.queue.ID {
		return nil, ErrNotFound
	}
	return cloneToken(t), nil
}

func (m *memQueueTx) InsertToken(t *models.Token) error {
	m.store.nextTokenID++
	t.ID = m.store.nextTokenID
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	m.store.tokens[t.ID] = cloneToken(t)
	return nil
}

func (m *memQueueTx) UpdateToken(t *models.Token) error {
	if _, ok := m.store.tokens[t.ID]; !ok {
		return ErrNotFound
	}
	cp := cloneToken(t)
	cp.UpdatedAt = time.Now()
	m.store.tokens[t.ID] = cp
	return nil
}

func (m *memQueueTx) ShiftWaiting(fromPos int) error {
	for _, t := range m.store.tokens {
		if t.QueueID == m.queue.ID && t.Status == models.TokenWaiting && t.Position >= fromPos {
			t.Position++
			t.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (m *memQueueTx) BulkTokenStatus(from, to models.TokenStatus) (int64, error) {
	var n int64
	for _, t := range m.store.tokens {
		if t.QueueID == m.queue.ID && t.Status == from {
			t.Status = to
			t.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (m *memQueueTx) UpdateQueue(q *models.Queue) error {
	if _, ok := m.store.queues[q.ID]; !ok {
		return ErrNotFound
	}
	cp := cloneQueue(q)
	cp.UpdatedAt = time.Now()
	m.store.queues[q.ID] = cp
	return nil
}

func (s *MemoryStore) InsertTokenIfAbsent(ctx context.Context, t *models.Token) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Unique (queue_id, token_number) seperti di MySQL: nomor yang sudah
	// terpakai pasien lain juga tidak boleh masuk dua kali.
	for _, ex := range s.tokens {
		if ex.QueueID != t.QueueID || ex.TokenNumber != t.TokenNumber {
			continue
		}
		if ex.PatientID == t.PatientID {
			t.ID = ex.ID
		}
		return false, nil
	}

	s.nextTokenID++
	t.ID = s.nextTokenID
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.tokens[t.ID] = cloneToken(t)

	if q, ok := s.queues[t.QueueID]; ok && q.LastTokenNumber < t.TokenNumber {
		q.LastTokenNumber = t.TokenNumber
		q.UpdatedAt = now
	}
	return true, nil
}

func (s *MemoryStore) SetTokenStatus(ctx context.Context, tokenID int64, from, to models.TokenStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenID]
	if !ok {
		return false, ErrNotFound
	}
	if t.Status != from {
		return false, nil
	}
	t.Status = to
	t.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryStore) SetQueueStatus(ctx context.Context, queueID int64, from, to models.QueueStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[queueID]
	if !ok {
		return false, ErrNotFound
	}
	if q.Status != from {
		return false, nil
	}
	q.Status = to
	q.UpdatedAt = time.Now()
	return true, nil
}
