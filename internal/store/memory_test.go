package store_test

import (
	"context"
	"testing"
	"time"

	"backend-klinik/internal/models"
	"backend-klinik/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedQueue(t *testing.T, s *store.MemoryStore) *models.Queue {
	t.Helper()
	q, err := s.CreateQueue(context.Background(), 1, 1, time.Now().UTC())
	require.NoError(t, err)
	return q
}

func seedToken(t *testing.T, s *store.MemoryStore, queueID int64, number, pos int, status models.TokenStatus) *models.Token {
	t.Helper()
	tok := &models.Token{
		QueueID:     queueID,
		PatientID:   int64(number),
		TokenNumber: number,
		Status:      status,
		Position:    pos,
	}
	err := s.WithQueue(context.Background(), queueID, func(tx store.QueueTx) error {
		return tx.InsertToken(tok)
	})
	require.NoError(t, err)
	return tok
}

func TestFindOrCreatePatientByPhone(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	p1, err := s.FindOrCreatePatient(ctx, "Andi", "0811")
	require.NoError(t, err)
	p2, err := s.FindOrCreatePatient(ctx, "Andi Baru", "0811")
	require.NoError(t, err)
	assert.Equal(t, p1.ID, p2.ID)
	assert.Equal(t, "Andi", p2.Name, "telepon sama = pasien sama, nama lama dipertahankan")

	p3, err := s.FindOrCreatePatient(ctx, "Budi", "0812")
	require.NoError(t, err)
	assert.NotEqual(t, p1.ID, p3.ID)
}

func TestCreateQueueIdempotentPerDay(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	day := time.Now().UTC()

	q1, err := s.CreateQueue(ctx, 1, 1, day)
	require.NoError(t, err)
	q2, err := s.CreateQueue(ctx, 1, 1, day)
	require.NoError(t, err)
	assert.Equal(t, q1.ID, q2.ID)
}

func TestWithQueueNotFound(t *testing.T) {
	s := store.NewMemoryStore()
	err := s.WithQueue(context.Background(), 99, func(tx store.QueueTx) error { return nil })
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListTokensOrderedByPosition(t *testing.T) {
	s := store.NewMemoryStore()
	q := seedQueue(t, s)
	seedToken(t, s, q.ID, 1, 3, models.TokenWaiting)
	seedToken(t, s, q.ID, 2, 1, models.TokenWaiting)
	seedToken(t, s, q.ID, 3, 2, models.TokenWaiting)

	tokens, err := s.ListTokens(context.Background(), q.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{tokens[0].Position, tokens[1].Position, tokens[2].Position})
}

func TestShiftWaitingOnlyMovesWaiting(t *testing.T) {
	s := store.NewMemoryStore()
	q := seedQueue(t, s)
	serving := seedToken(t, s, q.ID, 1, 1, models.TokenInProgress)
	w2 := seedToken(t, s, q.ID, 2, 2, models.TokenWaiting)
	w3 := seedToken(t, s, q.ID, 3, 3, models.TokenWaiting)

	err := s.WithQueue(context.Background(), q.ID, func(tx store.QueueTx) error {
		return tx.ShiftWaiting(2)
	})
	require.NoError(t, err)

	got, err := s.GetToken(context.Background(), serving.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Position, "token aktif tidak ikut bergeser")

	got, err = s.GetToken(context.Background(), w2.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Position)
	got, err = s.GetToken(context.Background(), w3.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Position)
}

func TestBulkTokenStatus(t *testing.T) {
	s := store.NewMemoryStore()
	q := seedQueue(t, s)
	seedToken(t, s, q.ID, 1, 1, models.TokenWaiting)
	seedToken(t, s, q.ID, 2, 2, models.TokenWaiting)
	done := seedToken(t, s, q.ID, 3, 3, models.TokenCompleted)

	var n int64
	err := s.WithQueue(context.Background(), q.ID, func(tx store.QueueTx) error {
		var err error
		n, err = tx.BulkTokenStatus(models.TokenWaiting, models.TokenCancelled)
		return err
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	got, err := s.GetToken(context.Background(), done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TokenCompleted, got.Status)
}

func TestInsertTokenIfAbsentIdempotent(t *testing.T) {
	s := store.NewMemoryStore()
	q := seedQueue(t, s)
	ctx := context.Background()

	tok := &models.Token{QueueID: q.ID, PatientID: 7, TokenNumber: 3, Status: models.TokenWaiting, Position: 3}
	inserted, err := s.InsertTokenIfAbsent(ctx, tok)
	require.NoError(t, err)
	assert.True(t, inserted)
	firstID := tok.ID

	// Replay record yang sama: tidak ada baris baru.
	replay := &models.Token{QueueID: q.ID, PatientID: 7, TokenNumber: 3, Status: models.TokenWaiting, Position: 3}
	inserted, err = s.InsertTokenIfAbsent(ctx, replay)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, firstID, replay.ID)

	tokens, err := s.ListTokens(ctx, q.ID)
	require.NoError(t, err)
	assert.Len(t, tokens, 1)

	// last_token_number ikut maju, tapi tidak pernah mundur.
	got, err := s.GetQueue(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.LastTokenNumber)

	older := &models.Token{QueueID: q.ID, PatientID: 8, TokenNumber: 2, Status: models.TokenWaiting, Position: 2}
	_, err = s.InsertTokenIfAbsent(ctx, older)
	require.NoError(t, err)
	got, err = s.GetQueue(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.LastTokenNumber)
}

func TestCloseStaleQueues(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	today := time.Now().UTC()

	old, err := s.CreateQueue(ctx, 1, 1, today.AddDate(0, 0, -1))
	require.NoError(t, err)
	w := seedToken(t, s, old.ID, 1, 1, models.TokenWaiting)

	// Queue dokter lain dan queue hari ini tidak boleh tersentuh.
	other, err := s.CreateQueue(ctx, 1, 2, today.AddDate(0, 0, -1))
	require.NoError(t, err)
	current, err := s.CreateQueue(ctx, 1, 1, today)
	require.NoError(t, err)

	n, err := s.CloseStaleQueues(ctx, 1, 1, today)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := s.GetQueue(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueClosed, got.Status)
	tok, err := s.GetToken(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TokenCancelled, tok.Status)

	got, err = s.GetQueue(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueOpen, got.Status)
	got, err = s.GetQueue(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueOpen, got.Status)
}

func TestInsertTokenIfAbsentUniqueNumber(t *testing.T) {
	s := store.NewMemoryStore()
	q := seedQueue(t, s)
	ctx := context.Background()

	first := &models.Token{QueueID: q.ID, PatientID: 7, TokenNumber: 3, Status: models.TokenWaiting, Position: 3}
	inserted, err := s.InsertTokenIfAbsent(ctx, first)
	require.NoError(t, err)
	require.True(t, inserted)

	// Nomor token yang sama untuk pasien lain: unique (queue_id,
	// token_number) menolak tanpa error, seperti jaring duplicate key MySQL.
	other := &models.Token{QueueID: q.ID, PatientID: 8, TokenNumber: 3, Status: models.TokenWaiting, Position: 3}
	inserted, err = s.InsertTokenIfAbsent(ctx, other)
	require.NoError(t, err)
	assert.False(t, inserted)

	tokens, err := s.ListTokens(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.EqualValues(t, 7, tokens[0].PatientID)
}

func TestSetTokenStatusGuarded(t *testing.T) {
	s := store.NewMemoryStore()
	q := seedQueue(t, s)
	ctx := context.Background()
	tok := seedToken(t, s, q.ID, 1, 1, models.TokenCalled)

	// Status asal tidak cocok: record usang, tidak diterapkan.
	applied, err := s.SetTokenStatus(ctx, tok.ID, models.TokenWaiting, models.TokenSkipped)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := s.GetToken(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TokenCalled, got.Status)

	applied, err = s.SetTokenStatus(ctx, tok.ID, models.TokenCalled, models.TokenCompleted)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestSetQueueStatusGuarded(t *testing.T) {
	s := store.NewMemoryStore()
	q := seedQueue(t, s)
	ctx := context.Background()

	require.NoError(t, s.WithQueue(ctx, q.ID, func(tx store.QueueTx) error {
		qq := tx.Queue()
		qq.Status = models.QueueClosed
		return tx.UpdateQueue(qq)
	}))

	// Pause yang tertunda tidak boleh menghidupkan queue yang sudah ditutup.
	applied, err := s.SetQueueStatus(ctx, q.ID, models.QueueOpen, models.QueuePaused)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := s.GetQueue(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueClosed, got.Status)
}

func TestSetStatusNotFound(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	_, err := s.SetTokenStatus(ctx, 5, models.TokenWaiting, models.TokenCancelled)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.SetQueueStatus(ctx, 5, models.QueueOpen, models.QueueClosed)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetPatient(ctx, 5)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
