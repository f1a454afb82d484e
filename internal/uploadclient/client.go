// Package uploadclient sends media files to the upload endpoint as a single
// multipart request, reporting progress and throughput as bytes go out.
package uploadclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/auth"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/media"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/notify"
)

// DefaultSuccessDelay is the pause before the success callback fires.
const DefaultSuccessDelay = 1500 * time.Millisecond

var (
	// ErrCancelled is returned when the caller aborts the transfer.
	ErrCancelled = errors.New("upload cancelled")
	// ErrBusy is returned when a transfer is already in flight on the client.
	ErrBusy = errors.New("upload already in progress")
)

// Status is the state of the client's current transfer.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusUploading Status = "uploading"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Progress is one progress report.
type Progress struct {
	BytesSent      int64
	TotalBytes     int64
	Percent        float64
	BytesPerSecond float64
	Elapsed        time.Duration
}

// File is the payload of an upload.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Result is the server's answer to a successful upload.
type Result struct {
	MediaFileID uuid.UUID
	FileURL     string
}

type uploadResponse struct {
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	MediaFileID uuid.UUID `json:"mediaFileId"`
	FileURL     string    `json:"fileUrl"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithSuccessDelay overrides DefaultSuccessDelay.
func WithSuccessDelay(d time.Duration) Option { return func(c *Client) { c.successDelay = d } }

// WithMaxBytes overrides the 5 GiB ceiling.
func WithMaxBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn func(Progress)) Option { return func(c *Client) { c.onProgress = fn } }

// WithStatus registers a status-change callback.
func WithStatus(fn func(Status)) Option { return func(c *Client) { c.onStatus = fn } }

// WithSuccess registers the callback fired after the success delay.
func WithSuccess(fn func(*Result)) Option { return func(c *Client) { c.onSuccess = fn } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides time.Now for throughput.
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// Client uploads one file at a time to POST {baseURL}/upload.
type Client struct {
	baseURL  string
	apiKey   string
	token    string
	session  auth.SessionProvider
	notifier notify.Notifier

	http         *http.Client
	successDelay time.Duration
	maxBytes     int64
	onProgress   func(Progress)
	onStatus     func(Status)
	onSuccess    func(*Result)
	logger       *zap.Logger
	now          func() time.Time

	mu     sync.Mutex
	status Status
}

// New creates a client. token is the bearer access token; session supplies the userId field.
func New(baseURL, apiKey, token string, session auth.SessionProvider, notifier notify.Notifier, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		token:        token,
		session:      session,
		notifier:     notifier,
		http:         &http.Client{},
		successDelay: DefaultSuccessDelay,
		maxBytes:     media.MaxFileBytes,
		logger:       zap.NewNop(),
		now:          time.Now,
		status:       StatusIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = notify.NewLogNotifier(c.logger)
	}
	return c
}

// Status returns the state of the last transfer.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Reset returns a finished client to idle.
func (c *Client) Reset() {
	c.mu.Lock()
	if c.status != StatusUploading {
		c.status = StatusIdle
	}
	c.mu.Unlock()
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
	if c.onStatus != nil {
		c.onStatus(s)
	}
}

// claim moves the client to uploading unless a transfer is already running.
func (c *Client) claim() bool {
	c.mu.Lock()
	if c.status == StatusUploading {
		c.mu.Unlock()
		return false
	}
	c.status = StatusUploading
	c.mu.Unlock()
	if c.onStatus != nil {
		c.onStatus(StatusUploading)
	}
	return true
}

// Upload validates f and sends it. Validation failures return before any
// network I/O. Every failure is reported once through the notifier. There is no retry.
func (c *Client) Upload(ctx context.Context, f File) (*Result, error) {
	c.mu.Lock()
	if c.status == StatusUploading {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.mu.Unlock()

	userID, err := c.session.UserID(ctx)
	if err != nil {
		return nil, c.fail(ctx, uuid.Nil, "Please sign in to upload", err)
	}
	if err := media.ValidateFileLimit(f.ContentType, f.Size, c.maxBytes); err != nil {
		return nil, c.fail(ctx, userID, "Invalid file", err)
	}

	if !c.claim() {
		return nil, ErrBusy
	}
	tracker := newTracker(f.Size, c.now, c.onProgress)
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go writeForm(pw, mw, userID, f, tracker)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return nil, c.fail(ctx, userID, "Upload failed", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		_ = pr.CloseWithError(err)
		if ctx.Err() != nil {
			c.setStatus(StatusCancelled)
			c.notifier.Info(ctx, userID, "Upload cancelled", f.Name)
			return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		}
		return nil, c.fail(ctx, userID, "Upload failed", fmt.Errorf("network error: %w", err))
	}
	defer resp.Body.Close()

	var body uploadResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	switch {
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg := body.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, c.fail(ctx, userID, "Upload failed", fmt.Errorf("server returned %d: %s", resp.StatusCode, msg))
	case decodeErr != nil:
		return nil, c.fail(ctx, userID, "Upload failed", fmt.Errorf("invalid response: %w", decodeErr))
	case !body.Success:
		return nil, c.fail(ctx, userID, "Upload failed", errors.New(body.Error))
	}

	tracker.complete()
	c.setStatus(StatusSuccess)
	result := &Result{MediaFileID: body.MediaFileID, FileURL: body.FileURL}
	c.notifier.Info(ctx, userID, "Upload complete", f.Name)
	c.logger.Info("upload complete", zap.String("media_file_id", result.MediaFileID.String()), zap.Int64("size", f.Size))
	if c.onSuccess != nil {
		time.AfterFunc(c.successDelay, func() { c.onSuccess(result) })
	}
	return result, nil
}

func (c *Client) fail(ctx context.Context, userID uuid.UUID, title string, err error) error {
	c.setStatus(StatusError)
	c.notifier.Error(ctx, userID, title, err.Error())
	c.logger.Warn("upload failed", zap.Error(err))
	return err
}

// writeForm streams the multipart body: userId, fileName, then the file part.
func writeForm(pw *io.PipeWriter, mw *multipart.Writer, userID uuid.UUID, f File, t *tracker) {
	err := func() error {
		if err := mw.WriteField("userId", userID.String()); err != nil {
			return err
		}
		if err := mw.WriteField("fileName", f.Name); err != nil {
			return err
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.Name))
		h.Set("Content-Type", f.ContentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, &countingReader{r: f.Body, t: t}); err != nil {
			return err
		}
		return mw.Close()
	}()
	_ = pw.CloseWithError(err)
}

type countingReader struct {
	r io.Reader
	t *tracker
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.t.add(int64(n))
	}
	return n, err
}
