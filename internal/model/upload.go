package model

import "time"

// UploadVideoResponse represents the response after a video upload
type UploadVideoResponse struct {
	VideoID    string    `json:"video_id"`
	FileName   string    `json:"file_name"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}
