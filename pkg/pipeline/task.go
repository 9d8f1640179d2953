package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"avatarsync/pkg/logger"
	"avatarsync/pkg/scanner"
	"avatarsync/pkg/storage"
	"avatarsync/pkg/thumbnail"
)

// Outcome is the per-file result. Skipped means both remote variants were
// already present and no upload was attempted; it is a distinct bucket from
// success.
type Outcome struct {
	Original  bool
	Thumbnail bool
	Skipped   bool
}

func (o Outcome) Succeeded() bool {
	return !o.Skipped && o.Original && o.Thumbnail
}

// Uploader processes a single source file: derives the original and thumbnail
// keys, optionally skips work already present in the store, and uploads each
// missing variant with bounded retries.
type Uploader struct {
	backend      storage.Backend
	logger       *logger.Logger
	keyPrefix    string
	skipExisting bool
	retryCount   int
	retryDelay   time.Duration
}

func NewUploader(backend storage.Backend, log *logger.Logger, keyPrefix string, skipExisting bool, retryCount int, retryDelay time.Duration) *Uploader {
	if log == nil {
		log = logger.NewDefault()
	}
	if retryCount < 1 {
		retryCount = 1
	}
	return &Uploader{
		backend:      backend,
		logger:       log,
		keyPrefix:    keyPrefix,
		skipExisting: skipExisting,
		retryCount:   retryCount,
		retryDelay:   retryDelay,
	}
}

func (u *Uploader) originalKey(file scanner.SourceFile) string {
	return fmt.Sprintf("%s/original/%s", u.keyPrefix, file.RelPath)
}

func (u *Uploader) thumbnailKey(file scanner.SourceFile) string {
	return fmt.Sprintf("%s/thumbnail/%s", u.keyPrefix, file.RelPath)
}

func (u *Uploader) ProcessFile(ctx context.Context, file scanner.SourceFile) Outcome {
	originalKey := u.originalKey(file)
	thumbnailKey := u.thumbnailKey(file)

	var originalExists, thumbnailExists bool
	if u.skipExisting {
		originalExists = u.exists(ctx, originalKey)
		thumbnailExists = u.exists(ctx, thumbnailKey)

		if originalExists && thumbnailExists {
			u.logger.Debug("skipping file, both variants already uploaded", map[string]any{
				"file": file.RelPath,
			})
			return Outcome{Original: true, Thumbnail: true, Skipped: true}
		}
	}

	var outcome Outcome

	if originalExists {
		outcome.Original = true
	} else {
		contentType := contentTypeFor(file.Path)
		outcome.Original = u.uploadWithRetry(ctx, file.RelPath, "original", func(attemptCtx context.Context) error {
			return u.backend.UploadFile(attemptCtx, file.Path, originalKey, &storage.UploadOptions{
				ContentType: contentType,
			})
		})
	}

	if thumbnailExists {
		outcome.Thumbnail = true
	} else {
		outcome.Thumbnail = u.uploadThumbnail(ctx, file, thumbnailKey)
	}

	return outcome
}

func (u *Uploader) uploadThumbnail(ctx context.Context, file scanner.SourceFile, key string) bool {
	data, err := os.ReadFile(file.Path)
	if err != nil {
		u.logger.Error("failed to read source file", err, map[string]any{
			"file": file.RelPath,
		})
		return false
	}

	thumb, err := thumbnail.Generate(data)
	if err != nil {
		u.logger.Error("failed to create thumbnail", err, map[string]any{
			"file": file.RelPath,
		})
		return false
	}

	// thumb stays buffered so every retry attempt re-sends the same payload.
	return u.uploadWithRetry(ctx, file.RelPath, "thumbnail", func(attemptCtx context.Context) error {
		return u.backend.UploadFromReader(attemptCtx, bytes.NewReader(thumb), key, &storage.UploadOptions{
			ContentType: "image/jpeg",
		})
	})
}

// exists is best-effort: any error from the store counts as "not present",
// so the worst case is a redundant upload, never a lost one.
func (u *Uploader) exists(ctx context.Context, key string) bool {
	metadata, err := u.backend.CheckFileExists(ctx, key)
	if err != nil || metadata == nil {
		return false
	}
	return metadata.Exists
}

func (u *Uploader) uploadWithRetry(ctx context.Context, relPath, variant string, upload func(context.Context) error) bool {
	for attempt := 1; attempt <= u.retryCount; attempt++ {
		err := upload(ctx)
		if err == nil {
			u.logger.Debug("uploaded variant", map[string]any{
				"file":    relPath,
				"variant": variant,
				"attempt": attempt,
			})
			return true
		}

		if !storage.IsRetryableError(err) {
			u.logger.Error("upload failed with non-retryable error", err, map[string]any{
				"file":    relPath,
				"variant": variant,
				"attempt": attempt,
			})
			return false
		}

		if attempt == u.retryCount {
			u.logger.Error("upload failed after all attempts", err, map[string]any{
				"file":     relPath,
				"variant":  variant,
				"attempts": u.retryCount,
			})
			return false
		}

		u.logger.Warn("upload attempt failed, retrying", map[string]any{
			"file":    relPath,
			"variant": variant,
			"attempt": attempt,
		})

		select {
		case <-time.After(u.retryDelay):
		case <-ctx.Done():
			u.logger.Error("upload cancelled", ctx.Err(), map[string]any{
				"file":    relPath,
				"variant": variant,
			})
			return false
		}
	}
	return false
}

func contentTypeFor(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))

	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return contentType
}
