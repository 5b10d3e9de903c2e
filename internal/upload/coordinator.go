// Package upload hands finished recordings to the backend as a single
// multipart request and reports a typed outcome.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/radiorec/radiorec/internal/backend"
	"github.com/radiorec/radiorec/internal/capture"
	"github.com/radiorec/radiorec/internal/errors"
	"github.com/radiorec/radiorec/internal/httpclient"
	"github.com/radiorec/radiorec/internal/logger"
)

// ErrUploadInFlight is returned when the same descriptor is already being sent.
var ErrUploadInFlight = errors.NewStd("upload already in flight for this recording")

// DefaultTimeout bounds a send whose context carries no deadline.
const DefaultTimeout = 5 * time.Minute

// genericTransportDetail is used when the server gave no usable message.
const genericTransportDetail = "network error while contacting the server"

// Outcome is the result of one Send: either a stored recording or a failure.
type Outcome struct {
	ID        int64
	Recording *backend.Recording
	Failure   *capture.Failure
}

// OK reports whether the upload was accepted.
func (o Outcome) OK() bool { return o.Failure == nil }

// HasID reports whether the backend told us the id of the stored recording.
// An accepted upload whose response body could not be read has none.
func (o Outcome) HasID() bool { return o.OK() && o.ID > 0 }

// Err returns the failure as an error, nil on success.
func (o Outcome) Err() error {
	if o.Failure == nil {
		return nil
	}
	return o.Failure
}

// Observer is notified after every send attempt that reached the transport.
type Observer func(d *capture.Descriptor, o Outcome, elapsed time.Duration)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithObserver registers a callback for completed attempts.
func WithObserver(fn Observer) Option {
	return func(c *Coordinator) { c.observers = append(c.observers, fn) }
}

// WithLogger replaces the module logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// Coordinator sends descriptors to the backend. It never retries on its own
// and never mutates a descriptor, so a failed descriptor can be sent again.
type Coordinator struct {
	backend   *backend.Client
	timeout   time.Duration
	log       logger.Logger
	observers []Observer

	inflight sync.Map // *capture.Descriptor -> struct{}
}

// NewCoordinator creates a Coordinator on top of the backend client.
func NewCoordinator(b *backend.Client, opts ...Option) *Coordinator {
	c := &Coordinator{
		backend: b,
		timeout: DefaultTimeout,
		log:     GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send performs exactly one POST of d. A concurrent Send of the same
// descriptor returns ErrUploadInFlight without issuing a request.
func (c *Coordinator) Send(ctx context.Context, d *capture.Descriptor) (Outcome, error) {
	if d == nil {
		f := capture.NewFailure(capture.KindValidationFailure, "nothing to upload", nil)
		return Outcome{Failure: f}, nil
	}
	if _, busy := c.inflight.LoadOrStore(d, struct{}{}); busy {
		return Outcome{}, ErrUploadInFlight
	}
	defer c.inflight.Delete(d)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	out := c.send(ctx, d)
	elapsed := time.Since(start)

	if out.OK() {
		c.log.Info("recording uploaded",
			logger.Int64("recording_id", out.ID),
			logger.String("filename", d.Filename()),
			logger.Int("bytes", d.Size()),
			logger.Duration("elapsed", elapsed))
		c.backend.InvalidateCache()
	} else {
		c.log.Warn("upload failed",
			logger.String("filename", d.Filename()),
			logger.String("kind", out.Failure.Kind.String()),
			logger.String("detail", out.Failure.Detail))
		out.Failure.Report("upload", map[string]any{
			"filename":   d.Filename(),
			"bytes":      d.Size(),
			"session_id": d.SessionID(),
		})
	}

	for _, fn := range c.observers {
		fn(d, out, elapsed)
	}
	return out, nil
}

func (c *Coordinator) send(ctx context.Context, d *capture.Descriptor) Outcome {
	body, contentType, err := encodeMultipart(d)
	if err != nil {
		return Outcome{Failure: capture.NewFailure(capture.KindValidationFailure, err.Error(), err)}
	}

	req, err := httpclient.NewRequest(ctx, http.MethodPost, c.backend.URL("recordings/"), contentType, body)
	if err != nil {
		return Outcome{Failure: capture.NewFailure(capture.KindUploadTransportFailure, genericTransportDetail, err)}
	}

	resp, err := c.backend.Do(ctx, req)
	if err != nil {
		detail := backend.DetailOf(err)
		if detail == "" {
			detail = genericTransportDetail
		}
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			detail = "upload timed out or was cancelled"
		}
		return Outcome{Failure: capture.NewFailure(capture.KindUploadTransportFailure, detail, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	var rec backend.Recording
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&rec); err != nil {
		// Stored server-side but the echo is unreadable; the id is unknown.
		c.log.Warn("upload accepted but response not decodable, recording id unknown",
			logger.Int("status", resp.StatusCode), logger.Error(err))
		return Outcome{}
	}
	return Outcome{ID: rec.ID, Recording: &rec}
}

// encodeMultipart builds the form accepted by the recording create endpoint.
func encodeMultipart(d *capture.Descriptor) (*bytes.Buffer, string, error) {
	meta := d.Metadata()
	if d.Filename() == "" {
		return nil, "", fmt.Errorf("descriptor has no filename")
	}

	buf := bytes.NewBuffer(make([]byte, 0, d.Size()+1024))
	w := multipart.NewWriter(buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%s`, strconv.Quote(d.Filename())))
	h.Set("Content-Type", d.MIMEType())
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(d.Payload()); err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"title", meta.Title},
		{"type", meta.Type},
		{"format", meta.Format},
	}
	if name := strings.TrimSpace(meta.CustomName); name != "" {
		fields = append(fields, [2]string{"custom_name", name})
	}
	if meta.RetainedUntil != nil {
		fields = append(fields, [2]string{"retained_until", meta.RetainedUntil.UTC().Format(time.RFC3339)})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}
