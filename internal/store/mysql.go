package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"backend-klinik/internal/models"

	"github.com/go-sql-driver/mysql"
)

const (
	queueCols = "id, clinic_id, doctor_id, queue_date, status, current_token_id, last_token_number, created_at, updated_at"
	tokenCols = "id, queue_id, patient_id, token_number, status, is_emergency, position, called_at, started_at, completed_at, created_at, updated_at"
)

// MySQLStore - implementasi Store di atas database/sql + driver mysql.
type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueue(r rowScanner) (*models.Queue, error) {
	q := &models.Queue{}
	err := r.Scan(
		&q.ID, &q.ClinicID, &q.DoctorID, &q.QueueDate, &q.Status,
		&q.CurrentTokenID, &q.LastTokenNumber, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func scanToken(r rowScanner) (*models.Token, error) {
	t := &models.Token{}
	err := r.Scan(
		&t.ID, &t.QueueID, &t.PatientID, &t.TokenNumber, &t.Status,
		&t.IsEmergency, &t.Position, &t.CalledAt, &t.StartedAt,
		&t.CompletedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

func (s *MySQLStore) FindOrCreatePatient(ctx context.Context, name, phone string) (*models.Patient, error) {
	p, err := s.patientByPhone(ctx, phone)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO patients (name, phone, created_at)
		VALUES (?, ?, NOW())
	`, name, phone)
	if isDuplicateKey(err) {
		// Kalah race dengan insert lain untuk nomor yang sama.
		return s.patientByPhone(ctx, phone)
	}
	if err != nil {
		return nil, fmt.Errorf("insert patient: %w", err)
	}

	id, _ := res.LastInsertId()
	return s.GetPatient(ctx, id)
}

func (s *MySQLStore) patientByPhone(ctx context.Context, phone string) (*models.Patient, error) {
	p := &models.Patient{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, created_at FROM patients WHERE phone = ?
	`, phone).Scan(&p.ID, &p.Name, &p.Phone, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *MySQLStore) GetPatient(ctx context.Context, id int64) (*models.Patient, error) {
	p := &models.Patient{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, created_at FROM patients WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.Phone, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *MySQLStore) GetQueue(ctx context.Context, id int64) (*models.Queue, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+queueCols+" FROM queues WHERE id = ?", id)
	q, err := scanQueue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (s *MySQLStore) GetQueueForDay(ctx context.Context, clinicID, doctorID int64, day time.Time) (*models.Queue, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+queueCols+" FROM queues WHERE clinic_id = ? AND doctor_id = ? AND queue_date = ?",
		clinicID, doctorID, day.Format("2006-01-02"))
	q, err := scanQueue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (s *MySQLStore) CreateQueue(ctx context.Context, clinicID, doctorID int64, day time.Time) (*models.Queue, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO queues (clinic_id, doctor_id, queue_date, status, last_token_number, created_at, updated_at)
		VALUES (?, ?, ?, 'open', 0, NOW(), NOW())
	`, clinicID, doctorID, day.Format("2006-01-02"))
	if isDuplicateKey(err) {
		// Dua request membuat queue hari yang sama: ambil yang menang.
		return s.GetQueueForDay(ctx, clinicID, doctorID, day)
	}
	if err != nil {
		return nil, fmt.Errorf("insert queue: %w", err)
	}

	id, _ := res.LastInsertId()
	return s.GetQueue(ctx, id)
}

func (s *MySQLStore) CloseStaleQueues(ctx context.Context, clinicID, doctorID int64, before time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	day := before.Format("2006-01-02")

	_, err = tx.ExecContext(ctx, `
		UPDATE tokens t
		JOIN queues q ON t.queue_id = q.id
		SET t.status = 'cancelled', t.updated_at = NOW()
		WHERE q.clinic_id = ? AND q.doctor_id = ?
		  AND q.queue_date < ? AND q.status <> 'closed'
		  AND t.status = 'waiting'
	`, clinicID, doctorID, day)
	if err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE queues
		SET status = 'closed', current_token_id = NULL, updated_at = NOW()
		WHERE clinic_id = ? AND doctor_id = ?
		  AND queue_date < ? AND status <> 'closed'
	`, clinicID, doctorID, day)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	n, _ := res.RowsAffected()
	return n, nil
}

func (s *MySQLStore) GetToken(ctx context.Context, id int64) (*models.Token, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+tokenCols+" FROM tokens WHERE id = ?", id)
	t, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *MySQLStore) ListTokens(ctx context.Context, queueID int64) ([]models.Token, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+tokenCols+" FROM tokens WHERE queue_id = ? ORDER BY position ASC",
		queueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tokens := []models.Token{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *t)
	}
	return tokens, rows.Err()
}

func (s *MySQLStore) CountWaiting(ctx context.Context, queueID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tokens WHERE queue_id = ? AND status = 'waiting'
	`, queueID).Scan(&n)
	return n, err
}

// WithQueue: transaksi + row lock pada baris queue. Baris queue adalah
// titik serialisasi; dua operasi pada queue yang sama antre di lock ini.
func (s *MySQLStore) WithQueue(ctx context.Context, queueID int64, fn func(tx QueueTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		"SELECT "+queueCols+" FROM queues WHERE id = ? FOR UPDATE", queueID)
	q, err := scanQueue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if err := fn(&mysqlQueueTx{ctx: ctx, tx: tx, queue: q}); err != nil {
		return err
	}

	return tx.Commit()
}

type mysqlQueueTx struct {
	ctx   context.Context
	tx    *sql.Tx
	queue *models.Queue
}

func (m *mysqlQueueTx) Queue() *models.Queue { return m.queue }

func (m *mysqlQueueTx) Tokens() ([]models.Token, error) {
	rows, err := m.tx.QueryContext(m.ctx,
		"SELECT "+tokenCols+" FROM tokens WHERE queue_id = ? ORDER BY position ASC",
		m.queue.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tokens := []models.Token{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *t)
	}
	return tokens, rows.Err()
}

func (m *mysqlQueueTx) Token(id int64) (*models.Token, error) {
	row := m.tx.QueryRowContext(m.ctx,
		"SELECT "+tokenCols+" FROM tokens WHERE id = ? AND queue_id = ?",
		id, m.queue.ID)
	t, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (m *mysqlQueueTx) InsertToken(t *models.Token) error {
	res, err := m.tx.ExecContext(m.ctx, `
		INSERT INTO tokens (queue_id, patient_id, token_number, status, is_emergency, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, NOW(), NOW())
	`, t.QueueID, t.PatientID, t.TokenNumber, t.Status, t.IsEmergency, t.Position)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	t.ID, _ = res.LastInsertId()
	return nil
}

func (m *mysqlQueueTx) UpdateToken(t *models.Token) error {
	_, err := m.tx.ExecContext(m.ctx, `
		UPDATE tokens
		SET status = ?, position = ?, called_at = ?, started_at = ?, completed_at = ?, updated_at = NOW()
		WHERE id = ?
	`, t.Status, t.Position, t.CalledAt, t.StartedAt, t.CompletedAt, t.ID)
	return err
}

func (m *mysqlQueueTx) ShiftWaiting(fromPos int) error {
	_, err := m.tx.ExecContext(m.ctx, `
		UPDATE tokens
		SET position = position + 1, updated_at = NOW()
		WHERE queue_id = ? AND status = 'waiting' AND position >= ?
	`, m.queue.ID, fromPos)
	return err
}

func (m *mysqlQueueTx) BulkTokenStatus(from, to models.TokenStatus) (int64, error) {
	res, err := m.tx.ExecContext(m.ctx, `
		UPDATE tokens
		SET status = ?, updated_at = NOW()
		WHERE queue_id = ? AND status = ?
	`, to, m.queue.ID, from)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (m *mysqlQueueTx) UpdateQueue(q *models.Queue) error {
	_, err := m.tx.ExecContext(m.ctx, `
		UPDATE queues
		SET status = ?, current_token_id = ?, last_token_number = ?, updated_at = NOW()
		WHERE id = ?
	`, q.Status, q.CurrentTokenID, q.LastTokenNumber, q.ID)
	return err
}

// InsertTokenIfAbsent - apply record token_create dari sync engine.
// Redelivery aman: cek (queue, pasien, nomor token) dulu sebelum insert,
// plus unique index (queue_id, token_number) sebagai jaring terakhir.
func (s *MySQLStore) InsertTokenIfAbsent(ctx context.Context, t *models.Token) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM tokens
		WHERE queue_id = ? AND patient_id = ? AND token_number = ?
	`, t.QueueID, t.PatientID, t.TokenNumber).Scan(&existing)
	if err == nil {
		t.ID = existing
		return false, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO tokens (queue_id, patient_id, token_number, status, is_emergency, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, NOW(), NOW())
	`, t.QueueID, t.PatientID, t.TokenNumber, t.Status, t.IsEmergency, t.Position)
	if isDuplicateKey(err) {
		return false, tx.Commit()
	}
	if err != nil {
		return false, err
	}
	t.ID, _ = res.LastInsertId()

	// Counter nomor token di baris queue ikut dimajukan supaya admisi
	// store-direct berikutnya tidak memakai ulang nomor hasil jalur cache.
	_, err = tx.ExecContext(ctx, `
		UPDATE queues
		SET last_token_number = GREATEST(last_token_number, ?), updated_at = NOW()
		WHERE id = ?
	`, t.TokenNumber, t.QueueID)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// SetTokenStatus - CAS pada status: update hanya kalau baris masih from.
// RowsAffected 0 pada baris yang ada berarti record sudah usang.
func (s *MySQLStore) SetTokenStatus(ctx context.Context, tokenID int64, from, to models.TokenStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tokens SET status = ?, updated_at = NOW() WHERE id = ? AND status = ?
	`, to, tokenID, from)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetToken(ctx, tokenID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *MySQLStore) SetQueueStatus(ctx context.Context, queueID int64, from, to models.QueueStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queues SET status = ?, updated_at = NOW() WHERE id = ? AND status = ?
	`, to, queueID, from)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetQueue(ctx, queueID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}
