package config

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"backend-klinik/internal/helper"

	_ "github.com/go-sql-driver/mysql"
)

// buildDSN - loc mengikuti timezone klinik, bukan zona proses: kolom DATE
// harus di-parse di zona yang sama dengan perhitungan batas hari, kalau
// tidak pembandingan same-day (reopen, queue hari ini) meleset.
func buildDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=%s",
		GetEnv("DB_USER", "root"),
		GetEnv("DB_PASSWORD", ""),
		GetEnv("DB_HOST", "127.0.0.1"),
		GetEnv("DB_PORT", "3306"),
		GetEnv("DB_NAME", "klinik"),
		url.QueryEscape(helper.ClinicLocation().String()),
	)
}

// NewDB membuka koneksi MySQL dan mengembalikan handle eksplisit.
// Tidak ada singleton; handle di-pass ke komponen yang butuh.
func NewDB() (*sql.DB, error) {
	db, err := sql.Open("mysql", buildDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetMaxOpenConns(GetEnvInt("DB_MAX_OPEN", 10))
	db.SetMaxIdleConns(GetEnvInt("DB_MAX_IDLE", 5))
	db.SetConnMaxLifetime(15 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	return db, nil
}
