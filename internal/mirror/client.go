// Package mirror copies approved proof photos to the club's shared drive
// through the upload-proof function.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"clubhours/internal/metrics"
	"clubhours/internal/model"
	"clubhours/internal/photo"
)

// Metadata describes the request a mirrored photo belongs to.
type Metadata struct {
	RequestID     string `json:"requestId"`
	StudentName   string `json:"studentName"`
	StudentNumber string `json:"studentNumber"`
	EventName     string `json:"eventName"`
	EventDate     string `json:"eventDate"`
	UploadedAt    string `json:"uploadedAt"`
}

// Payload is the JSON body the upload function accepts.
type Payload struct {
	Base64Data string   `json:"base64Data"`
	MimeType   string   `json:"mimeType"`
	FileName   string   `json:"fileName"`
	Metadata   Metadata `json:"metadata"`
}

// Client posts proof photos to the upload endpoint. With Skip set, or no
// endpoint, every call is a no-op.
type Client struct {
	Endpoint string
	HTTP     *http.Client
	Skip     bool
	now      func() time.Time
}

// New creates a client. An empty endpoint disables mirroring.
func New(endpoint string, skip bool) *Client {
	return &Client{
		Endpoint: endpoint,
		Skip:     skip || endpoint == "",
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		now:      time.Now,
	}
}

// NewPayload builds the upload body for a request and its inline photo.
func NewPayload(req model.HourRequest, p photo.Photo, at time.Time) Payload {
	who := req.StudentSNumber
	if who == "" {
		who = req.StudentName
	}
	if who == "" {
		who = "student"
	}
	event := req.EventName
	if event == "" {
		event = "event"
	}
	stamp := at.UTC().Format("2006-01-02T15:04:05.000Z")
	return Payload{
		Base64Data: p.Data,
		MimeType:   p.MimeType,
		FileName:   photo.FileName([]string{who, event, stamp}, p.MimeType),
		Metadata: Metadata{
			RequestID:     req.ID,
			StudentName:   req.StudentName,
			StudentNumber: req.StudentSNumber,
			EventName:     req.EventName,
			EventDate:     req.EventDate,
			UploadedAt:    stamp,
		},
	}
}

// Upload mirrors the inline photo of req. Requests without an inline photo
// are skipped and reported as not sent.
func (c *Client) Upload(ctx context.Context, req model.HourRequest) (bool, error) {
	if c.Skip {
		return false, nil
	}
	p, ok := photo.Extract(req.Description, photo.DefaultMinRun)
	if !ok {
		return false, nil
	}
	err := c.post(ctx, NewPayload(req, p, c.now()))
	metrics.PhotoUploads.WithLabelValues("mirror", metrics.Result(err)).Inc()
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) post(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("mirror request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mirror error %s: %s", resp.Status, string(bodyBytes))
	}
	return nil
}

// Health checks that the endpoint answers. Any response below 500 counts,
// since the function only accepts POST.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, c.Endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("mirror unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("mirror unhealthy: %s", resp.Status)
	}
	return nil
}
