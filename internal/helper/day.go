package helper

import (
	"os"
	"time"
)

const dayLayout = "2006-01-02"

// ClinicLocation membaca CLINIC_TZ (default Asia/Jakarta).
// Semua batas hari antrian dihitung di timezone klinik, bukan UTC.
func ClinicLocation() *time.Location {
	tz := os.Getenv("CLINIC_TZ")
	if tz == "" {
		tz = "Asia/Jakarta"
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Today - tanggal hari ini (jam 00:00) di timezone klinik.
func Today(loc *time.Location) time.Time {
	now := time.Now().In(loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
}

// DayString memformat tanggal ke format kolom DATE (YYYY-MM-DD).
func DayString(t time.Time) string {
	return t.Format(dayLayout)
}

// SameDay - true jika a dan b jatuh di hari kalender yang sama di loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return a.In(loc).Format(dayLayout) == b.In(loc).Format(dayLayout)
}
