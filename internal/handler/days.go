package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"kyde/internal/core"
	"kyde/internal/models"
	"kyde/internal/repository"
	"kyde/internal/service"
)

type DayHandler struct {
	Closing *service.ClosingService
	Repo    repository.Repository
}

func (h *DayHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/days")
	group.POST("/:date/close", h.close)
	group.GET("/:date/nets", h.nets)
	group.GET("/:date/transfers", h.transfers)
}

type closeDayRequest struct {
	PolicyVersion    string `json:"policy_version"`
	FixedCostEUR     string `json:"fixed_cost_eur"`
	VariableCostRate string `json:"variable_cost_rate"`
}

// @Summary Close a trading day
// @Tags days
// @Accept json
// @Produce json
// @Param date path string true "trading date YYYY-MM-DD"
// @Param body body closeDayRequest true "close parameters"
// @Success 200 {object} service.DayCloseResult
// @Router /api/v1/days/{date}/close [post]
func (h *DayHandler) close(c *gin.Context) {
	var req closeDayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	opts := service.CloseOptions{PolicyVersion: strings.TrimSpace(req.PolicyVersion)}
	var parseErr error
	opts.FixedCostEUR, parseErr = parseCost(req.FixedCostEUR)
	if parseErr != nil {
		Error(c, http.StatusBadRequest, "fixed_cost_eur is not numeric", nil)
		return
	}
	opts.VariableCostRate, parseErr = parseCost(req.VariableCostRate)
	if parseErr != nil {
		Error(c, http.StatusBadRequest, "variable_cost_rate is not numeric", nil)
		return
	}

	res, err := h.Closing.CloseDay(c.Request.Context(), c.Param("date"), opts)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, res, nil)
}

// parseCost reads an optional decimal override; empty means "use the
// configured default".
func parseCost(raw string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// @Summary Day net balances
// @Tags days
// @Produce json
// @Param date path string true "trading date YYYY-MM-DD"
// @Success 200 {object} map[string]any
// @Router /api/v1/days/{date}/nets [get]
func (h *DayHandler) nets(c *gin.Context) {
	day, err := h.day(c)
	if err != nil {
		Fail(c, err)
		return
	}
	items, err := h.Repo.ListDayNetsByDay(c.Request.Context(), day.ID)
	if err != nil {
		Fail(c, err)
		return
	}
	out := make([]service.NetLine, 0, len(items))
	for _, n := range items {
		out = append(out, service.NetLine{ParticipantID: n.ParticipantID, NetEUR: n.NetEUR.StringFixed(2)})
	}
	Ok(c, gin.H{"date": day.DateStr, "status": day.Status, "audit_hash": day.AuditHash, "nets": out}, nil)
}

// @Summary Day internal transfers
// @Tags days
// @Produce json
// @Param date path string true "trading date YYYY-MM-DD"
// @Success 200 {object} map[string]any
// @Router /api/v1/days/{date}/transfers [get]
func (h *DayHandler) transfers(c *gin.Context) {
	day, err := h.day(c)
	if err != nil {
		Fail(c, err)
		return
	}
	items, err := h.Repo.ListInternalTransfersByDay(c.Request.Context(), day.ID)
	if err != nil {
		Fail(c, err)
		return
	}
	out := make([]service.TransferLine, 0, len(items))
	for _, t := range items {
		out = append(out, service.TransferLine{
			FromParticipantID: t.FromParticipantID,
			ToParticipantID:   t.ToParticipantID,
			AmountEUR:         t.AmountEUR.StringFixed(2),
		})
	}
	Ok(c, gin.H{"date": day.DateStr, "status": day.Status, "transfers": out}, nil)
}

func (h *DayHandler) day(c *gin.Context) (*models.TradingDay, error) {
	dateStr := c.Param("date")
	if _, _, err := core.ParseTradingDate(dateStr); err != nil {
		return nil, err
	}
	label, err := core.CycleLabelForDate(dateStr)
	if err != nil {
		return nil, err
	}
	cycle, err := h.Repo.GetCycleByLabel(c.Request.Context(), label)
	if err != nil {
		return nil, err
	}
	return h.Repo.GetTradingDay(c.Request.Context(), cycle.ID, dateStr)
}
