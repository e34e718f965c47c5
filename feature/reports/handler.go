package reports

import (
	"errors"
	"strconv"

	"record-sync/core/logger"
	"record-sync/core/reconcile"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for reconciliation runs and their reports.
type Handler struct {
	service *Service
	allowed func(source string) bool
}

// NewHandler creates a new HTTP handler. allowed filters the sources that may
// be reconciled; nil allows any.
func NewHandler(service *Service, allowed func(source string) bool) *Handler {
	if allowed == nil {
		allowed = func(source string) bool { return source != "" }
	}
	return &Handler{service: service, allowed: allowed}
}

// RegisterRoutes registers the reports routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/reports")
	group.Get("/", h.HandleList)
	group.Get("/:source/latest", h.HandleLatest)

	app.Post("/reconcile/:source", h.HandleReconcile)
}

// HandleList lists persisted reports.
// @Summary List Reports
// @Description Lists persisted reconciliation reports, newest first per source.
// @Tags reports
// @Produce json
// @Param source query string false "Only list reports of this source"
// @Success 200 {array} reports.Entry
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /reports [get]
func (h *Handler) HandleList(c *fiber.Ctx) error {
	entries, err := h.service.List(c.Query("source"))
	if err != nil {
		logger.WithRayID(h.service.logger, c).Error("Failed to list reports", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(entries)
}

// HandleLatest returns the newest report of a source.
// @Summary Latest Report
// @Description Returns the most recent reconciliation report of a source.
// @Tags reports
// @Produce json
// @Param source path string true "Logical source"
// @Success 200 {object} reconcile.Report
// @Failure 404 {object} map[string]string "No report"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /reports/{source}/latest [get]
func (h *Handler) HandleLatest(c *fiber.Ctx) error {
	report, err := h.service.Latest(c.Params("source"))
	if errors.Is(err, ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		logger.WithRayID(h.service.logger, c).Error("Failed to read report", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(report)
}

// HandleReconcile runs a reconciliation of a source.
// @Summary Reconcile Source
// @Description Reconciles the ledger and the relational store of a source and returns the run report. Concurrent triggers for a running source in the same mode share its report; a trigger in the other mode gets 409.
// @Tags reconcile
// @Produce json
// @Param source path string true "Logical source"
// @Param dry_run query bool false "Compute the run without writing"
// @Success 200 {object} reconcile.Report
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 403 {object} map[string]string "Source not allowed"
// @Failure 409 {object} map[string]string "Run in progress"
// @Failure 500 {object} map[string]interface{} "Run failed"
// @Router /reconcile/{source} [post]
func (h *Handler) HandleReconcile(c *fiber.Ctx) error {
	source := c.Params("source")
	l := logger.WithRayID(h.service.logger, c).With(zap.String("source", source))

	if !validSource(source) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid source"})
	}
	if !h.allowed(source) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "source not allowed"})
	}

	dryRun := h.service.Options().DryRun
	if raw := c.Query("dry_run"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid dry_run"})
		}
		dryRun = v
	}

	l.Info("Triggering reconciliation", zap.Bool("dry_run", dryRun))
	report, shared, err := h.service.Reconcile(c.UserContext(), source, dryRun)
	if shared {
		c.Set("X-Run-Shared", "true")
	}

	switch {
	case errors.Is(err, reconcile.ErrRunInProgress):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case err != nil && report == nil:
		l.Error("Reconciliation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		l.Error("Reconciliation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error(), "report": report})
	}
	return c.JSON(report)
}
