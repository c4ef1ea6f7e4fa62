package handler

import (
	"context"
	"strconv"

	"backend-klinik/internal/models"

	"github.com/gofiber/fiber/v2"
)

type AdmitRequest struct {
	PatientID   int64  `json:"patient_id"`
	PatientName string `json:"patient_name"`
	Phone       string `json:"phone"`
	IsEmergency bool   `json:"is_emergency"`
}

// Admit mendaftarkan pasien ke antrian. Pasien ditunjuk lewat patient_id,
// atau lewat patient_name+phone (dicari/dibuat di direktori pasien).
func (h *Handler) Admit(c *fiber.Ctx) error {
	queueID, err := queueIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Queue id tidak valid",
		})
	}

	var req AdmitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	var token *models.Token
	switch {
	case req.PatientID != 0:
		token, err = h.Queue.Admit(c.Context(), queueID, req.PatientID, req.IsEmergency)
	case req.PatientName != "" && req.Phone != "":
		token, err = h.Queue.AdmitByContact(c.Context(), queueID, req.PatientName, req.Phone, req.IsEmergency)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "patient_id atau patient_name+phone wajib diisi",
		})
	}
	if err != nil {
		return respondErr(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Nomor antrian berhasil diambil",
		"data":    token,
	})
}

func tokenIDParam(c *fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.Params("id"), 10, 64)
}

func (h *Handler) Skip(c *fiber.Ctx) error {
	return h.tokenOp(c, h.Queue.Skip)
}

func (h *Handler) MarkNoShow(c *fiber.Ctx) error {
	return h.tokenOp(c, h.Queue.MarkNoShow)
}

func (h *Handler) Readd(c *fiber.Ctx) error {
	return h.tokenOp(c, h.Queue.Readd)
}

func (h *Handler) Cancel(c *fiber.Ctx) error {
	return h.tokenOp(c, h.Queue.Cancel)
}

func (h *Handler) tokenOp(c *fiber.Ctx, op func(ctx context.Context, tokenID int64) (*models.Token, error)) error {
	tokenID, err := tokenIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Token id tidak valid",
		})
	}

	token, err := op(c.Context(), tokenID)
	if err != nil {
		return respondErr(c, err)
	}
	return respondOK(c, token)
}
