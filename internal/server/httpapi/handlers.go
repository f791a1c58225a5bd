package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/driftletter/driftletter/internal/common"
	"github.com/driftletter/driftletter/internal/logging"
	"github.com/driftletter/driftletter/internal/server/models"
	"github.com/driftletter/driftletter/internal/server/services"
	"github.com/gin-gonic/gin"
)

// submitRequest is the JSON body of POST /api/v1/letters.
type submitRequest struct {
	UserID           string            `json:"user_id" binding:"required"`
	IdempotencyToken string            `json:"idempotency_token"`
	Title            string            `json:"title"`
	Content          string            `json:"content" binding:"required"`
	Tags             map[string]string `json:"tags"`
}

// letterResponse is the JSON shape of a letter on the wire.
type letterResponse struct {
	ID             string            `json:"id"`
	SenderID       string            `json:"sender_id"`
	Title          string            `json:"title"`
	Content        string            `json:"content"`
	Tags           map[string]string `json:"tags,omitempty"`
	RecipientState string            `json:"recipient_state"`
	RecipientID    string            `json:"recipient_id,omitempty"`
	DateSent       time.Time         `json:"date_sent"`
}

func toLetterResponse(l *models.Letter) letterResponse {
	return letterResponse{
		ID:             l.ID,
		SenderID:       l.SenderID,
		Title:          l.Title,
		Content:        l.Content,
		Tags:           l.Tags,
		RecipientState: string(l.RecipientState),
		RecipientID:    l.RecipientID,
		DateSent:       l.DateSent,
	}
}

// abortWithError maps sentinel errors onto HTTP status codes.
func abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrorInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, common.ErrorInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid transition"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// LetterHandlers serves letter submission, lookup, and the manual
// reconcile trigger.
type LetterHandlers struct {
	letters  *services.LetterService
	delivery *services.DeliveryService
	logger   logging.Logger
}

func NewLetterHandlers(ls *services.LetterService, ds *services.DeliveryService, logger logging.Logger) *LetterHandlers {
	return &LetterHandlers{letters: ls, delivery: ds, logger: logger.With("handler", "letters")}
}

// Submit handles POST /api/v1/letters.
func (h *LetterHandlers) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and content are required"})
		return
	}

	letter, err := h.delivery.Submit(c.Request.Context(), services.SubmitRequest{
		SenderID: req.UserID,
		Token:    req.IdempotencyToken,
		Title:    req.Title,
		Content:  req.Content,
		Tags:     req.Tags,
	})
	if err != nil {
		h.logger.Error(c.Request.Context(), "submit failed", "senderId", req.UserID, "error", err.Error())
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toLetterResponse(letter))
}

// Get handles GET /api/v1/letters/:id.
func (h *LetterHandlers) Get(c *gin.Context) {
	letter, err := h.letters.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLetterResponse(letter))
}

// Reconcile handles POST /api/v1/admin/reconcile.
func (h *LetterHandlers) Reconcile(c *gin.Context) {
	finished, err := h.delivery.Reconcile(c.Request.Context())
	if err != nil {
		h.logger.Error(c.Request.Context(), "reconcile failed", "error", err.Error())
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"finished": finished})
}

// UserHandlers serves the identity existence check, preferences, and
// letter history.
type UserHandlers struct {
	users  *services.UserService
	logger logging.Logger
}

func NewUserHandlers(us *services.UserService, logger logging.Logger) *UserHandlers {
	return &UserHandlers{users: us, logger: logger.With("handler", "users")}
}

// Exists handles GET /api/v1/users/:id/exists. Read-only: looking up an
// unknown ID does not register it.
func (h *UserHandlers) Exists(c *gin.Context) {
	exists, err := h.users.Exists(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

// GetPreferences handles GET /api/v1/users/:id/preferences.
func (h *UserHandlers) GetPreferences(c *gin.Context) {
	prefs, err := h.users.GetPreferences(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// SetPreferences handles PUT /api/v1/users/:id/preferences, registering
// the user on first contact.
func (h *UserHandlers) SetPreferences(c *gin.Context) {
	var prefs models.Preferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid preferences"})
		return
	}

	if err := h.users.SetPreferences(c.Request.Context(), c.Param("id"), prefs); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// SentLetters handles GET /api/v1/users/:id/sent.
func (h *UserHandlers) SentLetters(c *gin.Context) {
	ids, err := h.users.SentLetterIDs(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"letter_ids": ids})
}

// ReceivedLetters handles GET /api/v1/users/:id/received.
func (h *UserHandlers) ReceivedLetters(c *gin.Context) {
	ids, err := h.users.ReceivedLetterIDs(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"letter_ids": ids})
}
