package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"kyde/internal/service"
)

type PolicyHandler struct {
	Policies *service.PolicyService
}

func (h *PolicyHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/policies")
	group.POST("", h.put)
	group.GET("/:version", h.get)
}

type putPolicyRequest struct {
	Version   string          `json:"version"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

type policyResponse struct {
	Version   string          `json:"version"`
	HashHex   string          `json:"hash_hex"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature,omitempty"`
}

// @Summary Store an immutable policy version
// @Tags policies
// @Accept json
// @Produce json
// @Param body body putPolicyRequest true "policy document"
// @Success 200 {object} policyResponse
// @Router /api/v1/policies [post]
func (h *PolicyHandler) put(c *gin.Context) {
	var req putPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	req.Version = strings.TrimSpace(req.Version)
	if len(req.Data) == 0 {
		Error(c, http.StatusBadRequest, "data is required", nil)
		return
	}

	item, err := h.Policies.Put(c.Request.Context(), req.Version, req.Data, req.Signature)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, policyResponse{
		Version:   item.Version,
		HashHex:   item.HashHex,
		Data:      json.RawMessage(item.Data),
		Signature: item.Signature,
	}, nil)
}

// @Summary Get a policy version
// @Tags policies
// @Produce json
// @Param version path string true "policy version"
// @Success 200 {object} policyResponse
// @Router /api/v1/policies/{version} [get]
func (h *PolicyHandler) get(c *gin.Context) {
	item, err := h.Policies.Get(c.Request.Context(), c.Param("version"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, policyResponse{
		Version:   item.Version,
		HashHex:   item.HashHex,
		Data:      json.RawMessage(item.Data),
		Signature: item.Signature,
	}, nil)
}
