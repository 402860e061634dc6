package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/avataralabs/queuelabs-sub000/internal/retry"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// idempotencyNamespace keys the Idempotency-Key header; every attempt for a
// content item sends the same key.
var idempotencyNamespace = uuid.MustParse("6f1c3a52-8d0e-4c1b-9b57-0f3f4a9d2e61")

// webhookResponse is the body returned by the publish endpoint. A
// tracking_id with async=true means the upload continues in the background.
type webhookResponse struct {
	Success    bool   `json:"success"`
	Async      bool   `json:"async"`
	TrackingID string `json:"tracking_id"`
	ExternalID string `json:"external_id"`
	Message    string `json:"message"`
	Error      string `json:"error"`
}

type WebhookPublisher struct {
	url     string
	token   string
	client  *http.Client
	limiter *rate.Limiter
}

// NewWebhookPublisher posts to url. ratePerSec <= 0 disables limiting. The
// per-call deadline comes from the caller's context.
func NewWebhookPublisher(url, token string, ratePerSec int, client *http.Client) *WebhookPublisher {
	if client == nil {
		client = &http.Client{}
	}
	p := &WebhookPublisher{url: url, token: token, client: client}
	if ratePerSec > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return p
}

func IdempotencyKey(contentID int64) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(strconv.FormatInt(contentID, 10))).String()
}

func (p *WebhookPublisher) Publish(ctx context.Context, req *Request) (*Result, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, &PublishError{Kind: retry.KindTimeout, Err: err}
		}
	}

	body, contentType, err := encodeMultipart(req)
	if err != nil {
		return nil, &PublishError{Kind: retry.KindRejected, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, body)
	if err != nil {
		return nil, &PublishError{Kind: retry.KindRejected, Err: err}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Idempotency-Key", IdempotencyKey(req.ContentID))
	if p.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		slog.Info(err.Error())
		return nil, &PublishError{Kind: Classify(err), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &PublishError{Kind: Classify(err), Err: err}
	}

	var out webhookResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, &PublishError{Kind: KindForStatus(resp.StatusCode), StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, &PublishError{Kind: retry.KindUnknown, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode publish response: %w", decodeErr)}
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = out.Message
		}
		return nil, &PublishError{Kind: retry.KindRejected, StatusCode: resp.StatusCode, Message: msg}
	}

	if out.Async || (resp.StatusCode == http.StatusAccepted && out.TrackingID != "") {
		if out.TrackingID == "" {
			return nil, &PublishError{Kind: retry.KindUnknown, StatusCode: resp.StatusCode, Message: "async acknowledgment without tracking id"}
		}
		return &Result{Async: true, TrackingToken: out.TrackingID, Message: out.Message}, nil
	}
	return &Result{ExternalID: out.ExternalID, Message: out.Message}, nil
}

func encodeMultipart(req *Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"content_id", strconv.FormatInt(req.ContentID, 10)},
		{"platform", req.Platform},
		{"title", req.Title},
		{"caption", req.Caption},
		{"description", req.Description},
		{"target_account", req.TargetAccount},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}

	name := req.FileName
	if name == "" {
		name = "video.mp4"
	}
	part, err := w.CreateFormFile("video", name)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Payload); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
