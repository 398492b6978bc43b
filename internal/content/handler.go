// Package content holds the protected resource handlers. Handlers here run
// only after the payment gate has confirmed settlement; they are pure
// producers of the domain payload and perform no observable side effects of
// their own.
package content

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Data is the domain payload of the premium endpoint.
type Data struct {
	SecretInfo      string `json:"secretInfo"`
	Timestamp       string `json:"timestamp"`
	PaymentVerified bool   `json:"paymentVerified"`
}

// Envelope is the fixed success wrapper around every granted response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    Data   `json:"data"`
}

// Handler serves the paid content.
type Handler struct {
	now func() time.Time
}

// NewHandler creates a content handler. A nil clock defaults to time.Now.
func NewHandler(now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{now: now}
}

// Premium returns the paid payload. Reached only through the payment gate.
func (h *Handler) Premium(c *gin.Context) {
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Message: "Welcome to the premium content!",
		Data: Data{
			SecretInfo:      "This is exclusive paid content from Monad x402",
			Timestamp:       h.now().UTC().Format(time.RFC3339),
			PaymentVerified: true,
		},
	})
}
