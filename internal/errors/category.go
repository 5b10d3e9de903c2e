package errors

import "strings"

// ErrorCategory groups errors for reporting and for mapping to exit codes and
// HTTP statuses.
type ErrorCategory string

// CategorizedError lets a foreign error type choose its own category.
type CategorizedError interface {
	error
	ErrorCategory() ErrorCategory
}

const (
	CategoryGeneric       ErrorCategory = "generic"
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryNotFound      ErrorCategory = "not-found"
	CategoryPermission    ErrorCategory = "permission"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryCancellation  ErrorCategory = "cancellation"
	CategoryFileIO        ErrorCategory = "file-io"

	// capture pipeline
	CategoryAudio       ErrorCategory = "audio-processing"
	CategoryAudioSource ErrorCategory = "audio-source"
	CategoryEncoder     ErrorCategory = "encoder"

	// outbound traffic
	CategoryNetwork      ErrorCategory = "network"
	CategoryHTTP         ErrorCategory = "http-request"
	CategoryUpload       ErrorCategory = "upload"
	CategoryMQTTConnect  ErrorCategory = "mqtt-connection"
	CategoryMQTTPublish  ErrorCategory = "mqtt-publish"
	CategoryNotification ErrorCategory = "notification"
)

// userCaused categories are reported at info level; they describe a bad
// request or a refusal rather than a defect.
func (c ErrorCategory) userCaused() bool {
	switch c {
	case CategoryValidation, CategoryPermission, CategoryCancellation, CategoryNotFound:
		return true
	}
	return false
}

// transient categories usually clear up on retry.
func (c ErrorCategory) transient() bool {
	switch c {
	case CategoryNetwork, CategoryHTTP, CategoryUpload, CategoryTimeout, CategoryMQTTConnect, CategoryMQTTPublish:
		return true
	}
	return false
}

// inferCategory picks a category for an error built without one: a category
// carried by the error chain wins, then keywords in the message, then the
// component it was raised in.
func inferCategory(err error, component string) ErrorCategory {
	if err == nil {
		return CategoryGeneric
	}

	var own CategorizedError
	if As(err, &own) {
		return own.ErrorCategory()
	}
	var inner *EnhancedError
	if As(err, &inner) && inner.Category != "" {
		return inner.Category
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range messageRules {
		for _, word := range rule.words {
			if strings.Contains(msg, word) {
				return rule.category
			}
		}
	}

	if c, ok := componentCategories[component]; ok {
		return c
	}
	return CategoryGeneric
}

var messageRules = []struct {
	category ErrorCategory
	words    []string
}{
	{CategoryPermission, []string{"permission", "not allowed"}},
	{CategoryTimeout, []string{"timeout", "deadline"}},
	{CategoryNetwork, []string{"connection", "dial"}},
	{CategoryValidation, []string{"validation", "invalid"}},
	{CategoryFileIO, []string{"file", "open"}},
}

var componentCategories = map[string]ErrorCategory{
	"capture":         CategoryAudioSource,
	"capture.device":  CategoryAudioSource,
	"capture.encoder": CategoryEncoder,
	"meter":           CategoryAudio,
	"upload":          CategoryUpload,
	"backend":         CategoryHTTP,
	"api":             CategoryHTTP,
	"mqtt":            CategoryMQTTPublish,
	"notification":    CategoryNotification,
	"configuration":   CategoryConfiguration,
}
