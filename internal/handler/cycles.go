package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"kyde/internal/core"
	"kyde/internal/repository"
	"kyde/internal/service"
)

type CycleHandler struct {
	Closing    *service.ClosingService
	Statements *service.StatementService
	Repo       repository.Repository
}

func (h *CycleHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/cycles")
	group.POST("/:label/close", h.close)
	group.GET("/:label/run", h.run)
	group.GET("/:label/statements/:external_id", h.statement)
}

type closeCycleRequest struct {
	PolicyVersion    string `json:"policy_version"`
	FixedCostEUR     string `json:"fixed_cost_eur"`
	VariableCostRate string `json:"variable_cost_rate"`
}

// @Summary Close a billing cycle
// @Tags cycles
// @Accept json
// @Produce json
// @Param label path string true "cycle label YYYY-MM"
// @Param body body closeCycleRequest true "close parameters"
// @Success 200 {object} service.CycleCloseResult
// @Router /api/v1/cycles/{label}/close [post]
func (h *CycleHandler) close(c *gin.Context) {
	var req closeCycleRequest
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

	res, err := h.Closing.CloseCycle(c.Request.Context(), c.Param("label"), opts)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, res, nil)
}

// @Summary Settlement run of a closed cycle
// @Tags cycles
// @Produce json
// @Param label path string true "cycle label YYYY-MM"
// @Success 200 {object} map[string]any
// @Router /api/v1/cycles/{label}/run [get]
func (h *CycleHandler) run(c *gin.Context) {
	label := c.Param("label")
	if !core.ValidCycleLabel(label) {
		Error(c, http.StatusBadRequest, "invalid cycle label, want YYYY-MM", nil)
		return
	}
	cycle, err := h.Repo.GetCycleByLabel(c.Request.Context(), label)
	if err != nil {
		Fail(c, err)
		return
	}
	run, err := h.Repo.GetSettlementRunByCycle(c.Request.Context(), cycle.ID)
	if err != nil {
		Fail(c, err)
		return
	}
	payouts, err := h.Repo.ListPayoutsByRun(c.Request.Context(), run.ID)
	if err != nil {
		Fail(c, err)
		return
	}

	lines := make([]gin.H, 0, len(payouts))
	for _, p := range payouts {
		lines = append(lines, gin.H{
			"participant_id":      p.ParticipantID,
			"from_participant_id": p.FromParticipantID,
			"iban":                p.IBAN,
			"amount_eur":          p.AmountEUR.StringFixed(2),
			"remittance_info":     p.RemittanceInfo,
		})
	}
	Ok(c, gin.H{
		"cycle_label":    label,
		"run_uid":        run.RunUID,
		"policy_version": run.PolicyVersion,
		"summary":        json.RawMessage(run.Summary),
		"payouts":        lines,
	}, nil)
}

// @Summary Participant statement for a cycle
// @Tags cycles
// @Produce json
// @Param label path string true "cycle label YYYY-MM"
// @Param external_id path string true "participant external id"
// @Success 200 {object} service.Statement
// @Router /api/v1/cycles/{label}/statements/{external_id} [get]
func (h *CycleHandler) statement(c *gin.Context) {
	res, err := h.Statements.ForParticipant(c.Request.Context(), c.Param("label"), c.Param("external_id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, res, nil)
}
