package message

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"QChat/logger"
	"QChat/middleware"
	"QChat/tools/errs"
)

// Handler exposes the conversation operations over REST. Every response uses
// the {success, ...} envelope the client expects.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// RegisterRoutes wires the message surface under /api/messages.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/users", h.GetUsersForSidebar)
	r.GET("/:id", h.GetMessages)
	r.PUT("/mark/:id", h.MarkMessageAsSeen)
	r.POST("/send/:id", h.SendMessage)
}

type sendRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

func (h *Handler) GetUsersForSidebar(c *gin.Context) {
	viewerID := middleware.UserID(c)
	users, counts, err := h.svc.ListUsersWithUnseen(c.Request.Context(), viewerID)
	if err != nil {
		fail(c, err, "Failed to fetch users")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "users": users, "unseenMessages": counts})
}

func (h *Handler) GetMessages(c *gin.Context) {
	viewerID := middleware.UserID(c)
	peerID := c.Param("id")
	msgs, err := h.svc.ListConversation(c.Request.Context(), viewerID, peerID)
	if err != nil {
		fail(c, err, "Failed to fetch messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": msgs})
}

func (h *Handler) MarkMessageAsSeen(c *gin.Context) {
	m, err := h.svc.MarkSeen(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err, "Failed to mark message as seen")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": m})
}

func (h *Handler) SendMessage(c *gin.Context) {
	senderID := middleware.UserID(c)
	receiverID := c.Param("id")
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request body"})
		return
	}
	m, err := h.svc.CreateMessage(c.Request.Context(), senderID, receiverID, req.Text, req.Image)
	if err != nil {
		fail(c, err, "Failed to send message")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "newMessage": m})
}

// fail converts a typed core error into the envelope plus a matching status.
func fail(c *gin.Context, err error, fallback string) {
	status := http.StatusInternalServerError
	msg := fallback
	switch errs.CodeOf(err) {
	case errs.ValidationErrorCode:
		status = http.StatusBadRequest
		msg = "Message content cannot be empty"
	case errs.NotFoundErrorCode:
		status = http.StatusNotFound
		msg = "Message not found"
	case errs.UploadErrorCode:
		status = http.StatusBadGateway
		msg = "Image upload failed"
	case errs.AuthErrorCode:
		status = http.StatusUnauthorized
		msg = "Unauthorized"
	}
	logger.Warnf("[messages] %s: %v", fallback, err)
	c.JSON(status, gin.H{"success": false, "message": msg})
}
