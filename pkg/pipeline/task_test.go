package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"avatarsync/pkg/scanner"
	"avatarsync/pkg/storage"
)

func sourceFile(t *testing.T, root, rel string, width, height int) scanner.SourceFile {
	t.Helper()
	path := writeImage(t, root, rel, width, height)
	return scanner.SourceFile{Path: path, RelPath: rel}
}

func TestProcessFileRetryBound(t *testing.T) {
	root := t.TempDir()
	file := sourceFile(t, root, "a.png", 100, 100)

	backend := &mockBackend{}
	// Two transient failures, success on the final allowed attempt: the file
	// must count as uploaded, not failed.
	backend.On("UploadFile", mock.Anything, "avatar/original/a.png", mock.Anything).Return(transientError()).Twice()
	backend.On("UploadFile", mock.Anything, "avatar/original/a.png", mock.Anything).Return(nil).Once()
	backend.On("UploadFromReader", "avatar/thumbnail/a.png", mock.Anything).Return(nil)

	uploader := NewUploader(backend, testLogger(), "avatar", false, 3, 0)
	outcome := uploader.ProcessFile(context.Background(), file)

	assert.True(t, outcome.Succeeded())
	backend.AssertNumberOfCalls(t, "UploadFile", 3)
	backend.AssertExpectations(t)
}

func TestProcessFileRetriesExhausted(t *testing.T) {
	root := t.TempDir()
	file := sourceFile(t, root, "a.png", 100, 100)

	backend := &mockBackend{}
	backend.On("UploadFile", mock.Anything, mock.Anything, mock.Anything).Return(transientError())
	backend.On("UploadFromReader", mock.Anything, mock.Anything).Return(nil)

	uploader := NewUploader(backend, testLogger(), "avatar", false, 3, 0)
	outcome := uploader.ProcessFile(context.Background(), file)

	assert.False(t, outcome.Original)
	assert.True(t, outcome.Thumbnail)
	assert.False(t, outcome.Succeeded())
	backend.AssertNumberOfCalls(t, "UploadFile", 3)
}

func TestProcessFilePermanentErrorAbortsRetries(t *testing.T) {
	root := t.TempDir()
	file := sourceFile(t, root, "a.png", 100, 100)

	backend := &mockBackend{}
	backend.On("UploadFile", mock.Anything, mock.Anything, mock.Anything).Return(permanentError())
	backend.On("UploadFromReader", mock.Anything, mock.Anything).Return(nil)

	uploader := NewUploader(backend, testLogger(), "avatar", false, 3, 0)
	outcome := uploader.ProcessFile(context.Background(), file)

	assert.False(t, outcome.Original)
	backend.AssertNumberOfCalls(t, "UploadFile", 1)
}

func TestProcessFileThumbnailFailureIndependentOfOriginal(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "broken.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not an image at all"), 0o644))
	file := scanner.SourceFile{Path: path, RelPath: "broken.jpg"}

	backend := &mockBackend{}
	backend.On("UploadFile", mock.Anything, "avatar/original/broken.jpg", mock.Anything).Return(nil)

	uploader := NewUploader(backend, testLogger(), "avatar", false, 3, 0)
	outcome := uploader.ProcessFile(context.Background(), file)

	// The original upload is unaffected by the decode failure; the thumbnail
	// variant fails and no thumbnail upload is attempted.
	assert.True(t, outcome.Original)
	assert.False(t, outcome.Thumbnail)
	assert.False(t, outcome.Succeeded())
	backend.AssertNotCalled(t, "UploadFromReader", mock.Anything, mock.Anything)
}

func TestProcessFileSkippedOutcome(t *testing.T) {
	root := t.TempDir()
	file := sourceFile(t, root, "a.png", 100, 100)

	backend := &mockBackend{}
	backend.On("CheckFileExists", "avatar/original/a.png").Return(&storage.FileMetadata{Exists: true}, nil)
	backend.On("CheckFileExists", "avatar/thumbnail/a.png").Return(&storage.FileMetadata{Exists: true}, nil)

	uploader := NewUploader(backend, testLogger(), "avatar", true, 3, 0)
	outcome := uploader.ProcessFile(context.Background(), file)

	assert.True(t, outcome.Skipped)
	assert.False(t, outcome.Succeeded(), "a skipped file is a distinct bucket from success")
	backend.AssertNotCalled(t, "UploadFile", mock.Anything, mock.Anything, mock.Anything)
	backend.AssertNotCalled(t, "UploadFromReader", mock.Anything, mock.Anything)
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"photo.jpg", "image/jpeg"},
		{"photo.png", "image/png"},
		{"photo.gif", "image/gif"},
		{"photo.webp", "image/webp"},
		{"photo.unknownext", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, contentTypeFor(tt.path))
		})
	}
}

func TestUploadKeysUsePosixRelPath(t *testing.T) {
	root := t.TempDir()
	file := sourceFile(t, root, "nested/dir/a.png", 100, 100)

	backend := &mockBackend{}
	backend.On("UploadFile", mock.Anything, "avatar/original/nested/dir/a.png", mock.Anything).Return(nil).Once()
	backend.On("UploadFromReader", "avatar/thumbnail/nested/dir/a.png", mock.Anything).Return(nil).Once()

	uploader := NewUploader(backend, testLogger(), "avatar", false, 3, 0)
	outcome := uploader.ProcessFile(context.Background(), file)

	assert.True(t, outcome.Succeeded())
	backend.AssertExpectations(t)
}
