package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"kyde/internal/policy"
	"kyde/internal/repository"
	"kyde/internal/service"
)

type EventHandler struct {
	Events *service.EventService
}

func (h *EventHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/events")
	group.POST("", h.ingest)
	group.POST("/evaluate", h.evaluate)
	r.GET("/api/v1/traces", h.traces)
}

type ingestEventRequest struct {
	ParticipantExternalID string         `json:"participant_external_id"`
	AmountEUR             string         `json:"amount_eur"`
	Source                string         `json:"source"`
	Account               string         `json:"account"`
	Meta                  map[string]any `json:"meta"`
	EventTSRFC3339        string         `json:"event_ts"`
}

// @Summary Ingest a pre-priced ledger posting
// @Tags events
// @Accept json
// @Produce json
// @Param body body ingestEventRequest true "event"
// @Success 200 {object} map[string]any
// @Router /api/v1/events [post]
func (h *EventHandler) ingest(c *gin.Context) {
	var req ingestEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.AmountEUR))
	if err != nil {
		Error(c, http.StatusBadRequest, "amount_eur is not numeric", nil)
		return
	}
	ts, ok := parseEventTS(req.EventTSRFC3339)
	if !ok {
		Error(c, http.StatusBadRequest, "event_ts is not RFC3339", nil)
		return
	}

	entry, err := h.Events.Ingest(c.Request.Context(), service.RawEvent{
		ParticipantExternalID: strings.TrimSpace(req.ParticipantExternalID),
		AmountEUR:             amount,
		Source:                strings.TrimSpace(req.Source),
		Account:               req.Account,
		Meta:                  req.Meta,
		EventTS:               ts,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, gin.H{
		"cycle_id":       entry.CycleID,
		"participant_id": entry.ParticipantID,
		"amount_eur":     entry.AmountEUR.StringFixed(4),
		"source":         entry.Source,
	}, nil)
}

type evaluateEventRequest struct {
	PolicyVersion         string         `json:"policy_version"`
	ParticipantExternalID string         `json:"participant_external_id"`
	Source                string         `json:"source"`
	AmountEUR             string         `json:"amount_eur"`
	Meta                  map[string]any `json:"meta"`
	EventTSRFC3339        string         `json:"event_ts"`
}

type postingLine struct {
	RuleID        string `json:"rule_id"`
	Account       string `json:"account"`
	AmountEUR     string `json:"amount_eur"`
	BeneficiaryID uint64 `json:"beneficiary_id,omitempty"`
}

type evaluateEventResponse struct {
	Postings  []postingLine `json:"postings"`
	Trace     policy.Trace  `json:"trace"`
	TraceHash string        `json:"trace_hash"`
}

// @Summary Price an event through a policy version
// @Tags events
// @Accept json
// @Produce json
// @Param body body evaluateEventRequest true "event"
// @Success 200 {object} evaluateEventResponse
// @Router /api/v1/events/evaluate [post]
func (h *EventHandler) evaluate(c *gin.Context) {
	var req evaluateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	amount := decimal.Zero
	if strings.TrimSpace(req.AmountEUR) != "" {
		v, err := decimal.NewFromString(strings.TrimSpace(req.AmountEUR))
		if err != nil {
			Error(c, http.StatusBadRequest, "amount_eur is not numeric", nil)
			return
		}
		amount = v
	}
	ts, ok := parseEventTS(req.EventTSRFC3339)
	if !ok {
		Error(c, http.StatusBadRequest, "event_ts is not RFC3339", nil)
		return
	}

	res, err := h.Events.Evaluate(c.Request.Context(), service.EvaluateInput{
		PolicyVersion:         strings.TrimSpace(req.PolicyVersion),
		ParticipantExternalID: strings.TrimSpace(req.ParticipantExternalID),
		Source:                strings.TrimSpace(req.Source),
		AmountEUR:             amount,
		Meta:                  req.Meta,
		EventTS:               ts,
	})
	if err != nil {
		Fail(c, err)
		return
	}

	out := evaluateEventResponse{Trace: res.Trace, TraceHash: res.TraceHash}
	for _, p := range res.Postings {
		out.Postings = append(out.Postings, postingLine{
			RuleID:        p.RuleID,
			Account:       p.Account,
			AmountEUR:     p.AmountEUR.StringFixed(4),
			BeneficiaryID: p.BeneficiaryID,
		})
	}
	Ok(c, out, nil)
}

// @Summary List persisted explain traces
// @Tags events
// @Produce json
// @Param policy_version query string false "policy version"
// @Param participant_id query int false "participant id"
// @Param cycle_id query int false "cycle id"
// @Success 200 {object} map[string]any
// @Router /api/v1/traces [get]
func (h *EventHandler) traces(c *gin.Context) {
	params := repository.ListExplainTracesParams{Limit: 100}
	if v := strings.TrimSpace(c.Query("policy_version")); v != "" {
		params.PolicyVersion = &v
	}
	if v := strings.TrimSpace(c.Query("participant_id")); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			Error(c, http.StatusBadRequest, "participant_id is not numeric", nil)
			return
		}
		params.ParticipantID = &id
	}
	if v := strings.TrimSpace(c.Query("cycle_id")); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			Error(c, http.StatusBadRequest, "cycle_id is not numeric", nil)
			return
		}
		params.CycleID = &id
	}
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			params.Limit = n
		}
	}
	if v := strings.TrimSpace(c.Query("offset")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			params.Offset = n
		}
	}

	items, err := h.Events.Traces(c.Request.Context(), params)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func parseEventTS(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, true
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts.UTC(), true
}
