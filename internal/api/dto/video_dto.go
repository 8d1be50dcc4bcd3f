package dto

type PresignResponse struct {
	VideoID   string `json:"video_id"`
	UploadURL string `json:"upload_url"`
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	ExpiresIn int    `json:"expires_in"`
}

type RegisterMetadataRequest struct {
	VideoID  string `json:"video_id" binding:"required"`
	Filename string `json:"filename" binding:"required"`
}

// StorageEventRequest mirrors the object-created notification shape most
// S3-compatible stores emit.
type StorageEventRequest struct {
	Records []StorageEventRecord `json:"Records" binding:"required"`
}

type StorageEventRecord struct {
	S3 struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

type StorageEventResponse struct {
	Accepted []string `json:"accepted"`
	Rejected int      `json:"rejected,omitempty"`
}

type ListVideosRequest struct {
	Status    string `form:"status"`
	MediaType string `form:"media_type"`
	PageSize  int    `form:"page_size"`
	Cursor    string `form:"cursor"`
}

type ListVideosResponse struct {
	Videos     []VideoDTO `json:"videos"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

type VideoDTO struct {
	VideoID      string `json:"video_id"`
	Filename     string `json:"filename"`
	MediaType    string `json:"media_type"`
	Status       string `json:"status"`
	AttemptCount int    `json:"attempt_count"`
	Summary      string `json:"summary,omitempty"`
	ErrorDetail  string `json:"error_detail,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type StatusResponse struct {
	VideoID      string `json:"video_id"`
	Status       string `json:"status"`
	AttemptCount int    `json:"attempt_count"`
	ErrorDetail  string `json:"error_detail,omitempty"`
}

type TranscriptResponse struct {
	VideoID    string `json:"video_id"`
	Transcript string `json:"transcript"`
}

type SummaryResponse struct {
	VideoID string `json:"video_id"`
	Summary string `json:"summary"`
}
