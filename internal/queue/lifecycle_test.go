package queue_test

import (
	"context"
	"testing"
	"time"

	"backend-klinik/internal/cache"
	"backend-klinik/internal/models"
	"backend-klinik/internal/queue"
	"backend-klinik/internal/realtime"
	"backend-klinik/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenOrGetTodayIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	svc := queue.NewService(st, cache.New(nil), nil, realtime.NewHub(), time.UTC, false)
	ctx := context.Background()

	q1, err := svc.OpenOrGetToday(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, models.QueueOpen, q1.Status)
	assert.Equal(t, 0, q1.LastTokenNumber)

	q2, err := svc.OpenOrGetToday(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, q1.ID, q2.ID, "satu queue per (klinik, dokter, tanggal)")

	// Dokter lain dapat queue sendiri.
	q3, err := svc.OpenOrGetToday(ctx, 1, 2)
	require.NoError(t, err)
	assert.NotEqual(t, q1.ID, q3.ID)
}

func TestOpenTodayClosesStaleQueue(t *testing.T) {
	st := store.NewMemoryStore()
	svc := queue.NewService(st, cache.New(nil), nil, realtime.NewHub(), time.UTC, false)
	ctx := context.Background()

	// Queue kemarin tertinggal open dengan satu pasien menunggu.
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	old, err := st.CreateQueue(ctx, 1, 1, yesterday)
	require.NoError(t, err)
	p, err := st.FindOrCreatePatient(ctx, "Andi", "0811")
	require.NoError(t, err)
	err = st.WithQueue(ctx, old.ID, func(tx store.QueueTx) error {
		return tx.InsertToken(&models.Token{
			QueueID: old.ID, PatientID: p.ID,
			TokenNumber: 1, Status: models.TokenWaiting, Position: 1,
		})
	})
	require.NoError(t, err)

	today, err := svc.OpenOrGetToday(ctx, 1, 1)
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, today.ID)

	oldNow, err := st.GetQueue(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueClosed, oldNow.Status)

	tokens, err := st.ListTokens(ctx, old.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, models.TokenCancelled, tokens[0].Status)
}

func TestPauseResume(t *testing.T) {
	st := store.NewMemoryStore()
	svc := queue.NewService(st, cache.New(nil), nil, realtime.NewHub(), time.UTC, false)
	ctx := context.Background()

	q, err := svc.OpenOrGetToday(ctx, 1, 1)
	require.NoError(t, err)

	paused, err := svc.Pause(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueuePaused, paused.Status)

	// Mutasi antrian ditolak selama paused.
	p, err := st.FindOrCreatePatient(ctx, "Andi", "0811")
	require.NoError(t, err)
	_, err = svc.Admit(ctx, q.ID, p.ID, false)
	assert.ErrorIs(t, err, queue.ErrPaused)
	_, err = svc.CallNext(ctx, q.ID)
	assert.ErrorIs(t, err, queue.ErrPaused)

	// Pause dua kali: bukan open.
	_, err = svc.Pause(ctx, q.ID)
	assert.ErrorIs(t, err, queue.ErrInvalidState)

	resumed, err := svc.Resume(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueOpen, resumed.Status)

	// Resume saat sudah open.
	_, err = svc.Resume(ctx, q.ID)
	assert.ErrorIs(t, err, queue.ErrInvalidState)
}

func TestPauseResumeAfterClose(t *testing.T) {
	st := store.NewMemoryStore()
	svc := queue.NewService(st, cache.New(nil), nil, realtime.NewHub(), time.UTC, false)
	ctx := context.Background()

	q, err := svc.OpenOrGetToday(ctx, 1, 1)
	require.NoError(t, err)
	_, err = svc.Close(ctx, q.ID)
	require.NoError(t, err)

	_, err = svc.Pause(ctx, q.ID)
	assert.ErrorIs(t, err, queue.ErrClosed)
	_, err = svc.Resume(ctx, q.ID)
	assert.ErrorIs(t, err, queue.ErrClosed)
}

func TestCloseAndReopenSameDay(t *testing.T) {
	st := store.NewMemoryStore()
	hub := realtime.NewHub()
	svc := queue.NewService(st, cache.New(nil), nil, hub, time.UTC, false)
	ctx := context.Background()

	q, err := svc.OpenOrGetToday(ctx, 1, 1)
	require.NoError(t, err)

	p1, err := st.FindOrCreatePatient(ctx, "Andi", "0811")
	require.NoError(t, err)
	p2, err := st.FindOrCreatePatient(ctx, "Budi", "0812")
	require.NoError(t, err)
	a, err := svc.Admit(ctx, q.ID, p1.ID, false)
	require.NoError(t, err)
	b, err := svc.Admit(ctx, q.ID, p2.ID, false)
	require.NoError(t, err)

	sub := hub.Subscribe(q.ID)
	defer hub.Unsubscribe(sub)

	closed, err := svc.Close(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueClosed, closed.Status)
	assert.Nil(t, closed.CurrentTokenID)

	ev := <-sub.C
	assert.Equal(t, realtime.EventQueueClosed, ev.Type)
	stats, ok := ev.Data.(realtime.QueueStatsData)
	require.True(t, ok)
	assert.Equal(t, 2, stats.Stats.Cancelled)

	for _, id := range []int64{a.ID, b.ID} {
		tok, err := st.GetToken(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.TokenCancelled, tok.Status)
	}

	// Close saat sudah closed.
	_, err = svc.Close(ctx, q.ID)
	assert.ErrorIs(t, err, queue.ErrClosed)

	// Reopen hari yang sama: semua token cancelled balik waiting.
	reopened, err := svc.Reopen(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueOpen, reopened.Status)

	ev = <-sub.C
	assert.Equal(t, realtime.EventQueueReopened, ev.Type)
	stats, ok = ev.Data.(realtime.QueueStatsData)
	require.True(t, ok)
	assert.Equal(t, 2, stats.Stats.Restored)

	for _, id := range []int64{a.ID, b.ID} {
		tok, err := st.GetToken(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.TokenWaiting, tok.Status)
	}
}

func TestReopenOnlyFromClosed(t *testing.T) {
	st := store.NewMemoryStore()
	svc := queue.NewService(st, cache.New(nil), nil, realtime.NewHub(), time.UTC, false)
	ctx := context.Background()

	q, err := svc.OpenOrGetToday(ctx, 1, 1)
	require.NoError(t, err)

	_, err = svc.Reopen(ctx, q.ID)
	assert.ErrorIs(t, err, queue.ErrInvalidState)
}

func TestReopenRejectedOnPastDay(t *testing.T) {
	st := store.NewMemoryStore()
	svc := queue.NewService(st, cache.New(nil), nil, realtime.NewHub(), time.UTC, false)
	ctx := context.Background()

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	old, err := st.CreateQueue(ctx, 1, 1, yesterday)
	require.NoError(t, err)
	applied, err := st.SetQueueStatus(ctx, old.ID, models.QueueOpen, models.QueueClosed)
	require.NoError(t, err)
	require.True(t, applied)

	_, err = svc.Reopen(ctx, old.ID)
	assert.ErrorIs(t, err, queue.ErrInvalidState)
}
