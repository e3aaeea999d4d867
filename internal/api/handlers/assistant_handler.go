package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Cedctf/foodbridge-sub000/internal/services"
)

// ChatRequest is the body of POST /v1/assistant/chat.
type ChatRequest struct {
	Message string              `json:"message"`
	History []services.ChatTurn `json:"history" binding:"omitempty,max=50,dive"`
}

// AssistantHandler relays chat messages to the assistant.
type AssistantHandler struct {
	assistant services.IAssistantService
}

func NewAssistantHandler(assistant services.IAssistantService) *AssistantHandler {
	return &AssistantHandler{assistant: assistant}
}

// Chat handles POST /v1/assistant/chat
func (h *AssistantHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequestBody(c)
		return
	}

	reply, err := h.assistant.Reply(c.Request.Context(), req.Message, req.History)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}
