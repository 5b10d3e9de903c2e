package app

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/radiorec/radiorec/internal/backend"
	"github.com/radiorec/radiorec/internal/capture"
	"github.com/radiorec/radiorec/internal/errors"
	"github.com/radiorec/radiorec/internal/logger"
	"github.com/radiorec/radiorec/internal/upload"
)

// FileUpload describes an existing audio file to store.
type FileUpload struct {
	Path          string
	Title         string // defaults to the base name without extension
	Type          string // defaults to the capture type setting
	CustomName    string
	RetentionDays int
}

// UploadFile validates the file and sends it through the upload coordinator.
func (a *App) UploadFile(ctx context.Context, f FileUpload) (upload.Outcome, error) {
	base := filepath.Base(f.Path)
	mimeType, format, ok := capture.MIMETypeForFile(base)
	if !ok {
		return upload.Outcome{}, errors.Newf("unsupported file type %q, accepted: %s",
			filepath.Ext(base), strings.Join(capture.UploadFormats, ", ")).
			Component("app").
			Category(errors.CategoryValidation).
			Build()
	}

	recordingType := f.Type
	if recordingType == "" {
		recordingType = a.Settings.Capture.Type
	}
	if recordingType == "" {
		recordingType = backend.TypeAntenne
	}
	if !slices.Contains(backend.RecordingTypes, recordingType) {
		return upload.Outcome{}, errors.Newf("unknown recording type %q", recordingType).
			Component("app").
			Category(errors.CategoryValidation).
			Build()
	}

	payload, err := os.ReadFile(f.Path)
	if err != nil {
		return upload.Outcome{}, errors.New(err).
			Component("app").
			Category(errors.CategoryFileIO).
			FileContext(f.Path, 0).
			Build()
	}
	if len(payload) == 0 {
		return upload.Outcome{}, capture.NewFailure(capture.KindEmptyCapture, base+" is empty", nil)
	}

	title := f.Title
	if title == "" {
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	meta := capture.Metadata{
		Title:         title,
		Type:          recordingType,
		Format:        format,
		CustomName:    f.CustomName,
		RetainedUntil: capture.RetainedUntil(time.Now(), f.RetentionDays),
	}

	a.log.Info("uploading file",
		logger.String("path", f.Path),
		logger.String("mime_type", mimeType),
		logger.Int("bytes", len(payload)))
	return a.Uploader.Send(ctx, capture.NewDescriptor(payload, base, mimeType, meta))
}
