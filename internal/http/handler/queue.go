package handler

import (
	"context"
	"strconv"
	"time"

	"backend-klinik/internal/models"

	"github.com/gofiber/fiber/v2"
)

type OpenQueueRequest struct {
	ClinicID int64 `json:"clinic_id"`
	DoctorID int64 `json:"doctor_id"`
}

// OpenToday - ambil (atau buat) queue hari ini untuk pasangan klinik+dokter.
func (h *Handler) OpenToday(c *fiber.Ctx) error {
	var req OpenQueueRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}
	if req.ClinicID == 0 || req.DoctorID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "clinic_id dan doctor_id wajib diisi",
		})
	}

	q, err := h.Queue.OpenOrGetToday(c.Context(), req.ClinicID, req.DoctorID)
	if err != nil {
		return respondErr(c, err)
	}
	return respondOK(c, q)
}

func queueIDParam(c *fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.Params("id"), 10, 64)
}

// CallNext memanggil token waiting terdepan.
func (h *Handler) CallNext(c *fiber.Ctx) error {
	queueID, err := queueIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Queue id tidak valid",
		})
	}

	token, err := h.Queue.CallNext(c.Context(), queueID)
	if err != nil {
		return respondErr(c, err)
	}
	return respondOK(c, token)
}

func (h *Handler) Start(c *fiber.Ctx) error {
	queueID, err := queueIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Queue id tidak valid",
		})
	}

	token, err := h.Queue.Start(c.Context(), queueID)
	if err != nil {
		return respondErr(c, err)
	}
	return respondOK(c, token)
}

func (h *Handler) Complete(c *fiber.Ctx) error {
	queueID, err := queueIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Queue id tidak valid",
		})
	}

	token, err := h.Queue.Complete(c.Context(), queueID)
	if err != nil {
		return respondErr(c, err)
	}
	return respondOK(c, token)
}

func (h *Handler) Pause(c *fiber.Ctx) error {
	return h.lifecycle(c, h.Queue.Pause)
}

func (h *Handler) Resume(c *fiber.Ctx) error {
	return h.lifecycle(c, h.Queue.Resume)
}

func (h *Handler) Close(c *fiber.Ctx) error {
	return h.lifecycle(c, h.Queue.Close)
}

func (h *Handler) Reopen(c *fiber.Ctx) error {
	return h.lifecycle(c, h.Queue.Reopen)
}

func (h *Handler) lifecycle(c *fiber.Ctx, op func(ctx context.Context, queueID int64) (*models.Queue, error)) error {
	queueID, err := queueIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Queue id tidak valid",
		})
	}

	q, err := op(c.Context(), queueID)
	if err != nil {
		return respondErr(c, err)
	}
	return respondOK(c, q)
}

// GetSnapshot - queue lengkap dengan semua token (read-through cache).
func (h *Handler) GetSnapshot(c *fiber.Ctx) error {
	queueID, err := queueIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Queue id tidak valid",
		})
	}

	snap, err := h.Queue.Snapshot(c.Context(), queueID)
	if err != nil {
		return respondErr(c, err)
	}
	return respondOK(c, snap)
}

// GetCurrent - token yang sedang dilayani (bisa null).
func (h *Handler) GetCurrent(c *fiber.Ctx) error {
	queueID, err := queueIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Queue id tidak valid",
		})
	}

	token, err := h.Queue.Current(c.Context(), queueID)
	if err != nil {
		return respondErr(c, err)
	}
	return respondOK(c, token)
}

// GetWaitingCount - jumlah pasien menunggu.
func (h *Handler) GetWaitingCount(c *fiber.Ctx) error {
	queueID, err := queueIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Queue id tidak valid",
		})
	}

	n, err := h.Queue.WaitingCount(c.Context(), queueID)
	if err != nil {
		return respondErr(c, err)
	}
	return respondOK(c, fiber.Map{"waiting_count": n})
}

// GetSummary - ringkasan antrian per (klinik, dokter, tanggal) untuk display.
func (h *Handler) GetSummary(c *fiber.Ctx) error {
	clinicID, err1 := strconv.ParseInt(c.Query("clinic_id"), 10, 64)
	doctorID, err2 := strconv.ParseInt(c.Query("doctor_id"), 10, 64)
	if err1 != nil || err2 != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "clinic_id dan doctor_id wajib diisi",
		})
	}

	day := time.Now()
	if d := c.Query("date"); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "Format tanggal harus YYYY-MM-DD",
			})
		}
		day = parsed
	}

	sum, err := h.Queue.Summary(c.Context(), clinicID, doctorID, day)
	if err != nil {
		return respondErr(c, err)
	}
	return respondOK(c, sum)
}
