package handler

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trannm/mediascribe/internal/api/dto"
	"github.com/trannm/mediascribe/internal/api/storage"
	"github.com/trannm/mediascribe/internal/blobstore"
	"github.com/trannm/mediascribe/internal/domain"
)

// GetPresignedURL handles GET /api/v1/videos/presigned-url
// Issues a presigned PUT URL the client uploads the media file to. The
// video id minted here is the job id for the rest of the pipeline.
func (h *VideoHandler) GetPresignedURL(c *gin.Context) {
	filename := c.Query("filename")
	if filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "filename query parameter is required",
		})
		return
	}

	if _, ok := domain.MediaTypeForExtension(extOf(filename)); !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unsupported media format",
		})
		return
	}

	videoID := uuid.New().String()
	key := blobstore.SourceKey(videoID, filename)

	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uploadURL, err := h.blob.PresignUpload(c.Request.Context(), key, contentType)
	if err != nil {
		h.logger.Error("Failed to presign upload", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to issue upload URL",
		})
		return
	}

	// Record the job up front so status polling works from the moment
	// the client gets the URL.
	if _, err := h.ingester.RegisterUpload(c.Request.Context(), videoID, filename, h.blob.Bucket(), key); err != nil {
		h.logger.Error("Failed to register upload", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to register upload",
		})
		return
	}

	c.JSON(http.StatusOK, dto.PresignResponse{
		VideoID:   videoID,
		UploadURL: uploadURL,
		Bucket:    h.blob.Bucket(),
		Key:       key,
		ExpiresIn: int(h.blob.PresignTTL().Seconds()),
	})
}

// RegisterMetadata handles POST /api/v1/videos/metadata
// Records a job for an upload made outside the presigned-url flow
func (h *VideoHandler) RegisterMetadata(c *gin.Context) {
	var req dto.RegisterMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if _, err := uuid.Parse(req.VideoID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "video_id must be a valid UUID",
		})
		return
	}

	key := blobstore.SourceKey(req.VideoID, req.Filename)
	job, err := h.ingester.RegisterUpload(c.Request.Context(), req.VideoID, req.Filename, h.blob.Bucket(), key)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedFormat) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "unsupported media format",
			})
			return
		}
		h.logger.Error("Failed to register metadata", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to register metadata",
		})
		return
	}

	c.JSON(http.StatusCreated, toVideoDTO(job))
}

// StorageEvent handles POST /api/v1/events/storage
// Receives object-created notifications and queues processing for each
// uploaded object. Safe to deliver more than once.
func (h *VideoHandler) StorageEvent(c *gin.Context) {
	var req dto.StorageEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid event payload",
		})
		return
	}

	resp := dto.StorageEventResponse{}
	for _, record := range req.Records {
		bucket := record.S3.Bucket.Name
		key := record.S3.Object.Key

		videoID, err := h.ingester.OnObjectStored(c.Request.Context(), bucket, key)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidMessage) || errors.Is(err, domain.ErrUnsupportedFormat) {
				h.logger.Warn("Ignoring storage event for unrecognized object",
					slog.String("key", key),
				)
				resp.Rejected++
				continue
			}
			h.logger.Error("Failed to process storage event",
				slog.String("key", key),
				slog.Any("error", err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to process storage event",
			})
			return
		}

		resp.Accepted = append(resp.Accepted, videoID)
	}

	c.JSON(http.StatusOK, resp)
}

// ListVideos handles GET /api/v1/videos
// Lists jobs with optional filtering and cursor pagination
func (h *VideoHandler) ListVideos(c *gin.Context) {
	var req dto.ListVideosRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeVideoCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := storage.JobFilter{
		Status:    req.Status,
		MediaType: req.MediaType,
		PageSize:  req.PageSize,
		Cursor:    cursor,
	}

	jobs, err := h.storage.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list videos", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list videos",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	videos := make([]dto.VideoDTO, len(jobs))
	for i := range jobs {
		videos[i] = *toVideoDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = EncodeVideoCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListVideosResponse{
		Videos:     videos,
		NextCursor: nextCursor,
	})
}

// GetVideo handles GET /api/v1/videos/:video_id
func (h *VideoHandler) GetVideo(c *gin.Context) {
	job, ok := h.lookupVideo(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, toVideoDTO(job))
}

// GetStatus handles GET /api/v1/videos/:video_id/status
// The polling endpoint: small payload, no result content
func (h *VideoHandler) GetStatus(c *gin.Context) {
	job, ok := h.lookupVideo(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, dto.StatusResponse{
		VideoID:      job.JobID,
		Status:       string(job.Status),
		AttemptCount: job.AttemptCount,
		ErrorDetail:  job.ErrorDetail,
	})
}

// GetTranscript handles GET /api/v1/videos/:video_id/transcript
// Serves the stored transcript text for a completed job
func (h *VideoHandler) GetTranscript(c *gin.Context) {
	job, ok := h.lookupVideo(c)
	if !ok {
		return
	}

	if job.Status != domain.StatusCompleted {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "transcript not available",
			"status": string(job.Status),
		})
		return
	}

	// Transcripts always land in the configured storage bucket; the source
	// bucket on the job record reflects where the upload event came from.
	transcript, err := h.blob.Download(c.Request.Context(), h.blob.Bucket(), job.TranscriptKey)
	if err != nil {
		h.logger.Error("Failed to fetch transcript",
			slog.String("video_id", job.JobID),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to fetch transcript",
		})
		return
	}

	c.JSON(http.StatusOK, dto.TranscriptResponse{
		VideoID:    job.JobID,
		Transcript: string(transcript),
	})
}

// GetSummary handles GET /api/v1/videos/:video_id/summary
func (h *VideoHandler) GetSummary(c *gin.Context) {
	job, ok := h.lookupVideo(c)
	if !ok {
		return
	}

	if job.Status != domain.StatusCompleted {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "summary not available",
			"status": string(job.Status),
		})
		return
	}

	c.JSON(http.StatusOK, dto.SummaryResponse{
		VideoID: job.JobID,
		Summary: job.Summary,
	})
}

// lookupVideo validates the path parameter and loads the job, writing
// the error response itself when the lookup fails.
func (h *VideoHandler) lookupVideo(c *gin.Context) (*domain.Job, bool) {
	videoID := c.Param("video_id")

	if _, err := uuid.Parse(videoID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "video_id must be a valid UUID",
		})
		return nil, false
	}

	job, err := h.storage.GetJobByID(c.Request.Context(), videoID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "video not found",
			})
			return nil, false
		}
		h.logger.Error("Failed to get video",
			slog.String("video_id", videoID),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get video",
		})
		return nil, false
	}

	return job, true
}

func toVideoDTO(job *domain.Job) *dto.VideoDTO {
	return &dto.VideoDTO{
		VideoID:      job.JobID,
		Filename:     job.Filename,
		MediaType:    string(job.MediaType),
		Status:       string(job.Status),
		AttemptCount: job.AttemptCount,
		Summary:      job.Summary,
		ErrorDetail:  job.ErrorDetail,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    job.UpdatedAt.Format(time.RFC3339),
	}
}

func extOf(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}
