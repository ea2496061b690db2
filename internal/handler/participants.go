package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"kyde/internal/service"
)

type ParticipantHandler struct {
	Participants *service.ParticipantService
}

func (h *ParticipantHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/participants")
	group.POST("", h.upsert)
	group.GET("/:external_id", h.get)
}

type upsertParticipantRequest struct {
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	Role       string `json:"role"` // CONSUMER|PROSUMER|OPERATOR
	IBAN       string `json:"iban"`
}

type participantResponse struct {
	ID         uint64 `json:"id"`
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	IBAN       string `json:"iban"`
	APIKey     string `json:"api_key,omitempty"`
}

// @Summary Register or update a participant
// @Tags participants
// @Accept json
// @Produce json
// @Param body body upsertParticipantRequest true "participant"
// @Success 200 {object} participantResponse
// @Router /api/v1/participants [post]
func (h *ParticipantHandler) upsert(c *gin.Context) {
	var req upsertParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	req.ExternalID = strings.TrimSpace(req.ExternalID)
	req.Role = strings.ToUpper(strings.TrimSpace(req.Role))

	item, err := h.Participants.Upsert(c.Request.Context(), req.ExternalID, req.Name, req.Role, req.IBAN)
	if err != nil {
		Fail(c, err)
		return
	}
	// The key is shown on registration only.
	Ok(c, participantResponse{
		ID:         item.ID,
		ExternalID: item.ExternalID,
		Name:       item.Name,
		Role:       item.Role,
		IBAN:       item.IBAN,
		APIKey:     item.APIKey,
	}, nil)
}

// @Summary Get a participant
// @Tags participants
// @Produce json
// @Param external_id path string true "external id"
// @Success 200 {object} participantResponse
// @Router /api/v1/participants/{external_id} [get]
func (h *ParticipantHandler) get(c *gin.Context) {
	item, err := h.Participants.Get(c.Request.Context(), c.Param("external_id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, participantResponse{
		ID:         item.ID,
		ExternalID: item.ExternalID,
		Name:       item.Name,
		Role:       item.Role,
		IBAN:       item.IBAN,
	}, nil)
}
