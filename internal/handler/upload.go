package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/clipsight/api/internal/service"
	"github.com/clipsight/api/pkg/response"
)

const maxUploadSize = 2 * 1024 * 1024 * 1024 // 2GB

type UploadHandler struct {
	service *service.UploadService
}

func NewUploadHandler(svc *service.UploadService) *UploadHandler {
	return &UploadHandler{service: svc}
}

var validVideoTypes = map[string]bool{
	"video/mp4":        true,
	"video/quicktime":  true,
	"video/webm":       true,
	"video/x-matroska": true,
	"video/mpeg":       true,
}

// Video handles POST /api/v1/videos
func (h *UploadHandler) Video(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	if file.Size > maxUploadSize {
		return response.ValidationError(c, "File size exceeds 2GB limit", map[string]interface{}{
			"maxSize":  maxUploadSize,
			"fileSize": file.Size,
		})
	}

	contentType := file.Header.Get("Content-Type")
	if !validVideoTypes[contentType] {
		return response.ValidationError(c, "Invalid file type. Supported: MP4, MOV, WebM, MKV, MPEG", map[string]interface{}{
			"contentType": contentType,
		})
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	result, err := h.service.SaveVideo(c.Context(), file.Filename, f)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, result)
}

// DeleteVideo handles DELETE /api/v1/videos/:videoId
func (h *UploadHandler) DeleteVideo(c *fiber.Ctx) error {
	videoID := c.Params("videoId")
	if videoID == "" {
		return response.ValidationError(c, "Video ID is required", nil)
	}

	if err := h.service.DeleteVideo(c.Context(), videoID); err != nil {
		if err.Error() == "video not found" {
			return response.NotFound(c, "Video not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.NoContent(c)
}
