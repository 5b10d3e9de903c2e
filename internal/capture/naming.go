package capture

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Filename derives the upload filename from the recording type and start
// time. Millisecond granularity keeps consecutive recordings apart.
func Filename(recordingType, container string, t time.Time) string {
	return fmt.Sprintf("%s-%d.%s", recordingType, t.UnixMilli(), Extension(container))
}

// Extension returns the file extension for a container.
func Extension(container string) string {
	if container == "" {
		return "webm"
	}
	return container
}

// MIMEType returns the declared MIME type for a media type and container.
func MIMEType(mediaType MediaType, container string) string {
	if mediaType == MediaVideo {
		return "video/webm"
	}
	switch container {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	default:
		return "audio/" + Extension(container)
	}
}

var uploadMIMETypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".webm": "audio/webm",
}

// UploadFormats are the extensions the backend accepts for existing files.
var UploadFormats = []string{"mp3", "wav", "ogg", "m4a", "flac", "webm"}

// MIMETypeForFile returns the MIME type of an uploadable file and its format,
// or false when the extension is not accepted.
func MIMETypeForFile(name string) (mimeType, format string, ok bool) {
	ext := strings.ToLower(filepath.Ext(name))
	mimeType, ok = uploadMIMETypes[ext]
	if !ok {
		return "", "", false
	}
	return mimeType, strings.TrimPrefix(ext, "."), true
}

// RenderName expands naming placeholders:
//
//	{type} {date} {time} {timestamp} {jour} {mois} {annee} {heure} {minutes} {secondes}
//
// {date} is YYYY-MM-DD and {time} is HH-MM-SS, safe for file names.
func RenderName(template, recordingType string, t time.Time) string {
	two := func(n int) string { return fmt.Sprintf("%02d", n) }
	r := strings.NewReplacer(
		"{type}", recordingType,
		"{date}", t.Format("2006-01-02"),
		"{time}", t.Format("15-04-05"),
		"{timestamp}", strconv.FormatInt(t.Unix(), 10),
		"{jour}", two(t.Day()),
		"{mois}", two(int(t.Month())),
		"{annee}", strconv.Itoa(t.Year()),
		"{heure}", two(t.Hour()),
		"{minutes}", two(t.Minute()),
		"{secondes}", two(t.Second()),
	)
	return r.Replace(template)
}

// RetainedUntil returns now+days, or nil when days is not positive.
func RetainedUntil(now time.Time, days int) *time.Time {
	if days <= 0 {
		return nil
	}
	t := now.AddDate(0, 0, days)
	return &t
}
