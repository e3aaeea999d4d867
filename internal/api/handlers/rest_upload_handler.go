package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Cedctf/foodbridge-sub000/internal/api/middleware"
	"github.com/Cedctf/foodbridge-sub000/internal/storage"
)

const anonymousUploader = "anonymous"

// UploadRequest describes the image a client is about to upload.
type UploadRequest struct {
	Filename    string `json:"filename" binding:"required,max=255"`
	ContentType string `json:"content_type" binding:"required"`
}

// RestUploadHandler hands out presigned listing image uploads.
type RestUploadHandler struct {
	storage storage.IS3Storage
}

func NewRestUploadHandler(s storage.IS3Storage) *RestUploadHandler {
	return &RestUploadHandler{storage: s}
}

// CreateUpload handles POST /v1/uploads
func (h *RestUploadHandler) CreateUpload(c *gin.Context) {
	var req UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequestBody(c)
		return
	}

	owner := middleware.UserID(c)
	if owner == "" {
		owner = anonymousUploader
	}

	upload, err := h.storage.GeneratePresignedPutURL(c.Request.Context(), owner, req.Filename, req.ContentType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, upload)
}
