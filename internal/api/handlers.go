// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"visa-tracker/internal/common/errors"
	"visa-tracker/internal/common/logger"
	"visa-tracker/internal/common/validation"
	"visa-tracker/internal/models"
	"visa-tracker/internal/store"
	"visa-tracker/internal/sweep"
)

const dateLayout = "2006-01-02"

// SweepTrigger starts one sweep unless a run is already in progress.
type SweepTrigger interface {
	TriggerOnce(ctx context.Context) (sweep.Result, bool, error)
}

// ReminderSender delivers a single on-demand reminder.
type ReminderSender interface {
	SendReminderNow(ctx context.Context, userID, channel string) error
}

// Handler serves the visa tracker HTTP endpoints.
type Handler struct {
	store     store.Store
	trigger   SweepTrigger
	reminders ReminderSender
	logger    logger.Logger
}

func NewHandler(st store.Store, trigger SweepTrigger, reminders ReminderSender, log logger.Logger) *Handler {
	return &Handler{
		store:     st,
		trigger:   trigger,
		reminders: reminders,
		logger:    log,
	}
}

// Health GET /healthz.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

type submitApplicationRequest struct {
	UserID     string                `json:"userId"`
	Personal   models.PersonalInfo   `json:"personalInfo"`
	Address    models.AddressInfo    `json:"addressInfo"`
	Employment models.EmploymentInfo `json:"employmentInfo"`
	VisaStart  string                `json:"visaStartDate"`
	VisaEnd    string                `json:"visaEndDate"`
}

// SubmitApplication POST /api/v1/applications. Repeated submissions for the
// same user update the existing record rather than creating a duplicate.
func (h *Handler) SubmitApplication(c *fiber.Ctx) error {
	body := c.Body()

	result, err := validation.ValidateApplication(body)
	if err != nil {
		return errors.NewValidationFailedError("payload is not valid JSON")
	}
	if !result.Valid {
		return errors.NewValidationFailedError(validationDetails(result))
	}

	var req submitApplicationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return errors.NewValidationFailedError("payload is not valid JSON")
	}

	start, err := parseDate(req.VisaStart)
	if err != nil {
		return errors.NewValidationFailedError("visaStartDate: expected YYYY-MM-DD")
	}
	end, err := parseDate(req.VisaEnd)
	if err != nil {
		return errors.NewValidationFailedError("visaEndDate: expected YYYY-MM-DD")
	}
	if start != nil && end != nil && !end.After(*start) {
		return errors.NewValidationFailedError("visaEndDate must be after visaStartDate")
	}

	stored, err := h.store.SaveApplication(c.UserContext(), &models.Application{
		UserID:     req.UserID,
		Personal:   req.Personal,
		Address:    req.Address,
		Employment: req.Employment,
		VisaStart:  start,
		VisaEnd:    end,
	})
	if err != nil {
		return err
	}

	h.logger.Info("application saved", map[string]interface{}{
		"user_id":        stored.UserID,
		"application_id": stored.ID,
	})
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": stored})
}

// ListApplications GET /api/v1/applications.
func (h *Handler) ListApplications(c *fiber.Ctx) error {
	apps, err := h.store.GetApplications(c.UserContext())
	if err != nil {
		return err
	}
	if apps == nil {
		apps = []models.Application{}
	}
	return c.JSON(fiber.Map{"data": apps})
}

// GetApplication GET /api/v1/applications/:userId.
func (h *Handler) GetApplication(c *fiber.Ctx) error {
	userID := c.Params("userId")

	app, found, err := h.store.FindApplicationByUserID(c.UserContext(), userID)
	if err != nil {
		return err
	}
	if !found {
		return errors.NewNotFoundError("application", userID)
	}
	return c.JSON(fiber.Map{"data": app})
}

// SendReminder POST /api/v1/admin/reminders/:userId?channel=email|call.
func (h *Handler) SendReminder(c *fiber.Ctx) error {
	userID := c.Params("userId")
	channel := c.Query("channel", models.ChannelEmail)

	if err := h.reminders.SendReminderNow(c.UserContext(), userID, channel); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"userId":  userID,
		"channel": channel,
		"sent":    true,
	}})
}

// TriggerSweep POST /api/v1/admin/sweep. A sweep already in progress yields
// 409 rather than a second concurrent run.
func (h *Handler) TriggerSweep(c *fiber.Ctx) error {
	result, ran, err := h.trigger.TriggerOnce(c.UserContext())
	if err != nil {
		return err
	}
	if !ran {
		return c.Status(http.StatusConflict).JSON(fiber.Map{
			"error": fiber.Map{"code": "SWEEP_IN_PROGRESS", "message": "a sweep is already running"},
		})
	}
	return c.JSON(fiber.Map{"data": result})
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

func validationDetails(result *validation.ValidationResult) string {
	details := ""
	for i, e := range result.Errors {
		if i > 0 {
			details += "; "
		}
		details += fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return details
}
