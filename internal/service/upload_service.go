package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/clipsight/api/internal/model"
)

// UploadService stores uploaded videos in the local media directory.
type UploadService struct {
	mediaDir string
}

func NewUploadService(mediaDir string) *UploadService {
	return &UploadService{mediaDir: mediaDir}
}

// SaveVideo streams one uploaded file to disk and returns its assigned id.
// The reader is consumed incrementally; the file is never held in memory.
func (s *UploadService) SaveVideo(ctx context.Context, fileName string, r io.Reader) (*model.UploadVideoResponse, error) {
	if err := os.MkdirAll(s.mediaDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media dir: %w", err)
	}

	videoID := uuid.New().String()
	ext := filepath.Ext(fileName)
	path := filepath.Join(s.mediaDir, videoID+ext)

	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	return &model.UploadVideoResponse{
		VideoID:    videoID,
		FileName:   fileName,
		Size:       written,
		UploadedAt: time.Now(),
	}, nil
}

// DeleteVideo removes a stored video by id.
func (s *UploadService) DeleteVideo(ctx context.Context, videoID string) error {
	matches, err := filepath.Glob(filepath.Join(s.mediaDir, videoID+".*"))
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("video not found")
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return err
		}
	}
	return nil
}
