package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/policy"
)

// ---------- Admin ----------

// GetPolicy returns the effective security policy.
func (h *Handler) GetPolicy(c *gin.Context) {
	p, err := h.policies.Get(c.Request.Context())
	if err != nil {
		h.storageError(c, "read policy", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// PutPolicy overlays the request body on the current policy and saves it.
// Fields left out keep their current value.
func (h *Handler) PutPolicy(c *gin.Context) {
	p, err := h.policies.Get(c.Request.Context())
	if err != nil {
		h.storageError(c, "read policy", err)
		return
	}
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	saved, err := h.policies.Set(c.Request.Context(), p)
	if err != nil {
		var verr *policy.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Error(), "fields": verr.Fields})
			return
		}
		h.storageError(c, "save policy", err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// ResetBinding clears a principal's device and network binding.
func (h *Handler) ResetBinding(c *gin.Context) {
	if err := h.bindings.Reset(c.Request.Context(), c.Param("id")); err != nil {
		h.storageError(c, "reset binding", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "binding reset"})
}
