package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// LocalUploader stores files in a directory on disk and exposes them
// under a public URL prefix the server mounts as a file handler.
type LocalUploader struct {
	BaseDir    string
	PublicPath string
}

// NewLocalUploader constructs an uploader that writes to the provided
// directory. If baseDir is empty, os.TempDir() is used.
func NewLocalUploader(baseDir, publicPath string) (*LocalUploader, error) {
	dir := baseDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "advisormedia")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create local media dir: %w", err)
	}
	if publicPath == "" {
		publicPath = "/media"
	}
	return &LocalUploader{BaseDir: dir, PublicPath: publicPath}, nil
}

// Upload writes the incoming content under a random name and returns
// its servable URL.
func (l *LocalUploader) Upload(_ context.Context, input UploadInput) (UploadResult, error) {
	if input.Body == nil {
		return UploadResult{}, fmt.Errorf("upload body is required")
	}

	ext := filepath.Ext(input.Filename)
	if len(ext) > 10 {
		ext = ext[:10]
	}
	name := uuid.NewString() + ext

	target := filepath.Join(l.BaseDir, name)
	file, err := os.Create(target)
	if err != nil {
		return UploadResult{}, fmt.Errorf("create media file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, input.Body); err != nil {
		os.Remove(target)
		return UploadResult{}, fmt.Errorf("write media file: %w", err)
	}

	return UploadResult{
		Key: name,
		URL: l.PublicPath + "/" + name,
	}, nil
}
