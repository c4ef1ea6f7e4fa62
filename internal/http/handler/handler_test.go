package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend-klinik/internal/cache"
	"backend-klinik/internal/config"
	"backend-klinik/internal/http/handler"
	"backend-klinik/internal/http/middleware"
	"backend-klinik/internal/queue"
	"backend-klinik/internal/realtime"
	"backend-klinik/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type api struct {
	app   *fiber.App
	svc   *queue.Service
	store *store.MemoryStore
}

func newAPI(t *testing.T) *api {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")

	st := store.NewMemoryStore()
	svc := queue.NewService(st, cache.New(nil), nil, realtime.NewHub(), time.UTC, false)
	h := handler.New(svc)

	app := fiber.New()
	app.Get("/api/queues/summary", h.GetSummary)

	grp := app.Group("/api", middleware.JWTAuth())
	grp.Post("/queues/open", h.OpenToday)
	grp.Get("/queues/:id", h.GetSnapshot)
	grp.Get("/queues/:id/current", h.GetCurrent)
	grp.Get("/queues/:id/waiting-count", h.GetWaitingCount)
	grp.Post("/queues/:id/tokens", h.Admit)

	staff := middleware.RoleAuth("staff", "doctor")
	grp.Post("/queues/:id/call-next", staff, h.CallNext)
	grp.Post("/queues/:id/start", staff, h.Start)
	grp.Post("/queues/:id/complete", staff, h.Complete)
	grp.Post("/queues/:id/close", staff, h.Close)
	grp.Post("/tokens/:id/skip", staff, h.Skip)

	return &api{app: app, svc: svc, store: st}
}

func (a *api) request(t *testing.T, method, path, role string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		token, err := config.GenerateToken(1, "Petugas", role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)

	var envelope map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &envelope))
	return resp, envelope
}

func TestAuthRequired(t *testing.T) {
	a := newAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/queues/open", nil)
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/api/queues/open", nil)
	req.Header.Set("Authorization", "Bearer bukan-token")
	resp, err = a.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestStaffOnlyRoutes(t *testing.T) {
	a := newAPI(t)

	q, err := a.svc.OpenOrGetToday(context.Background(), 1, 1)
	require.NoError(t, err)

	// Role display boleh lihat, tidak boleh memanggil.
	resp, _ := a.request(t, http.MethodPost, fmt.Sprintf("/api/queues/%d/call-next", q.ID), "display", nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestOpenAdmitCallFlow(t *testing.T) {
	a := newAPI(t)

	resp, env := a.request(t, http.MethodPost, "/api/queues/open", "staff", handler.OpenQueueRequest{
		ClinicID: 1, DoctorID: 1,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, true, env["success"])
	queueID := int64(env["data"].(map[string]any)["id"].(float64))

	resp, env = a.request(t, http.MethodPost, fmt.Sprintf("/api/queues/%d/tokens", queueID), "staff", handler.AdmitRequest{
		PatientName: "Andi", Phone: "0811",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	data := env["data"].(map[string]any)
	assert.EqualValues(t, 1, data["token_number"])
	assert.Equal(t, "waiting", data["status"])

	resp, env = a.request(t, http.MethodPost, fmt.Sprintf("/api/queues/%d/call-next", queueID), "doctor", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data = env["data"].(map[string]any)
	assert.Equal(t, "called", data["status"])

	// Snapshot dan hitungan ikut berubah.
	resp, env = a.request(t, http.MethodGet, fmt.Sprintf("/api/queues/%d/waiting-count", queueID), "staff", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, env["data"].(map[string]any)["waiting_count"])

	resp, env = a.request(t, http.MethodGet, fmt.Sprintf("/api/queues/%d/current", queueID), "staff", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "called", env["data"].(map[string]any)["status"])
}

func TestAdmitValidation(t *testing.T) {
	a := newAPI(t)
	q, err := a.svc.OpenOrGetToday(context.Background(), 1, 1)
	require.NoError(t, err)

	resp, env := a.request(t, http.MethodPost, fmt.Sprintf("/api/queues/%d/tokens", q.ID), "staff", handler.AdmitRequest{})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, env["success"])
}

func TestErrorMapping(t *testing.T) {
	a := newAPI(t)
	ctx := context.Background()
	q, err := a.svc.OpenOrGetToday(ctx, 1, 1)
	require.NoError(t, err)

	// Antrian kosong: 404.
	resp, env := a.request(t, http.MethodPost, fmt.Sprintf("/api/queues/%d/call-next", q.ID), "staff", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, false, env["success"])

	// Start tanpa token dipanggil: 400.
	resp, _ = a.request(t, http.MethodPost, fmt.Sprintf("/api/queues/%d/start", q.ID), "staff", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// Queue tidak ada: 404.
	resp, _ = a.request(t, http.MethodGet, "/api/queues/999", "staff", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	// Admisi ganda pasien yang sama: 409.
	p, err := a.store.FindOrCreatePatient(ctx, "Andi", "0811")
	require.NoError(t, err)
	_, err = a.svc.Admit(ctx, q.ID, p.ID, false)
	require.NoError(t, err)
	resp, _ = a.request(t, http.MethodPost, fmt.Sprintf("/api/queues/%d/tokens", q.ID), "staff", handler.AdmitRequest{PatientID: p.ID})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	// Mutasi setelah close: 400.
	_, err = a.svc.Close(ctx, q.ID)
	require.NoError(t, err)
	resp, _ = a.request(t, http.MethodPost, fmt.Sprintf("/api/queues/%d/tokens", q.ID), "staff", handler.AdmitRequest{PatientID: p.ID})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestSummaryPublic(t *testing.T) {
	a := newAPI(t)
	q, err := a.svc.OpenOrGetToday(context.Background(), 1, 1)
	require.NoError(t, err)

	// Tanpa Authorization header: endpoint display publik.
	req := httptest.NewRequest(http.MethodGet, "/api/queues/summary?clinic_id=1&doctor_id=1", nil)
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var env map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &env))
	data := env["data"].(map[string]any)
	assert.EqualValues(t, q.ID, data["queue_id"])
	assert.Equal(t, "open", data["status"])

	// Query wajib.
	req = httptest.NewRequest(http.MethodGet, "/api/queues/summary", nil)
	resp, err = a.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
