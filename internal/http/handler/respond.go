package handler

import (
	"errors"

	"backend-klinik/internal/queue"

	"github.com/gofiber/fiber/v2"
)

// Handler memegang dependensi yang dulu global: service antrian di-inject
// dari main.
type Handler struct {
	Queue *queue.Service
}

func New(q *queue.Service) *Handler {
	return &Handler{Queue: q}
}

// respondErr memetakan taksonomi error engine ke status HTTP + envelope
// {success,error} standar.
func respondErr(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	msg := "Terjadi kesalahan internal"

	switch {
	case errors.Is(err, queue.ErrNotFound):
		status = fiber.StatusNotFound
		msg = "Data tidak ditemukan"
	case errors.Is(err, queue.ErrNoPatients):
		status = fiber.StatusNotFound
		msg = "Tidak ada pasien yang menunggu"
	case errors.Is(err, queue.ErrConflict):
		status = fiber.StatusConflict
		msg = "Masih ada token yang aktif"
	case errors.Is(err, queue.ErrClosed):
		status = fiber.StatusBadRequest
		msg = "Queue sudah ditutup"
	case errors.Is(err, queue.ErrPaused):
		status = fiber.StatusBadRequest
		msg = "Queue sedang dijeda"
	case errors.Is(err, queue.ErrInvalidState):
		status = fiber.StatusBadRequest
		msg = "Status tidak valid untuk operasi ini"
	}

	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}

func respondOK(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}
