package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/trannm/mediascribe/internal/api/storage"
	"github.com/trannm/mediascribe/internal/domain"
)

// VideoReader is the query surface the handlers need
type VideoReader interface {
	GetJobByID(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
}

// BlobStore issues upload URLs and serves stored transcripts
type BlobStore interface {
	Bucket() string
	PresignTTL() time.Duration
	PresignUpload(ctx context.Context, key, contentType string) (string, error)
	Download(ctx context.Context, bucket, key string) ([]byte, error)
}

// Ingester records uploads and reacts to storage events
type Ingester interface {
	RegisterUpload(ctx context.Context, jobID, filename, bucket, key string) (*domain.Job, error)
	OnObjectStored(ctx context.Context, bucket, key string) (string, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	Storage  VideoReader
	Blob     BlobStore
	Ingester Ingester
}

// VideoHandler handles video pipeline HTTP requests
type VideoHandler struct {
	logger   *slog.Logger
	storage  VideoReader
	blob     BlobStore
	ingester Ingester
}

// NewVideoHandler creates a new VideoHandler instance
func NewVideoHandler(deps *Dependencies) *VideoHandler {
	return &VideoHandler{
		logger:   deps.Logger,
		storage:  deps.Storage,
		blob:     deps.Blob,
		ingester: deps.Ingester,
	}
}
