// Package publisher performs the outbound publish call for a content item.
// A publish either completes synchronously or is acknowledged with a
// tracking token and finishes in the background; callers branch on Result.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/avataralabs/queuelabs-sub000/internal/retry"
	"google.golang.org/api/googleapi"
)

type Request struct {
	ContentID     int64
	Platform      string
	Title         string
	Caption       string
	Description   string
	TargetAccount string
	FileName      string
	Payload       []byte

	// RefreshToken is the encrypted OAuth refresh token of the target
	// profile, if the platform needs one.
	RefreshToken string
}

type Result struct {
	Async         bool
	TrackingToken string
	ExternalID    string
	Message       string
}

type Publisher interface {
	Publish(ctx context.Context, req *Request) (*Result, error)
}

// PublishError is a failed publish with its retry classification.
type PublishError struct {
	Kind       retry.FailureKind
	StatusCode int
	Message    string
	Err        error
}

func (e *PublishError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("publish %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("publish %s (status %d)", e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("publish %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("publish %s: %s", e.Kind, e.Message)
}

func (e *PublishError) Unwrap() error { return e.Err }

// KindForStatus maps an HTTP status of a failed response to a failure kind.
func KindForStatus(code int) retry.FailureKind {
	switch code {
	case 429, 502, 503, 504:
		return retry.KindOverloaded
	case 408:
		return retry.KindTimeout
	}
	return retry.KindRejected
}

// Classify returns the failure kind of a publish error. Deadline expiry is a
// timeout; connection-level errors are transport failures.
func Classify(err error) retry.FailureKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return retry.KindTimeout
	}

	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Kind
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return KindForStatus(gerr.Code)
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return retry.KindTimeout
	}

	var uerr *url.Error
	if errors.As(err, &uerr) {
		return retry.KindTransport
	}
	var operr *net.OpError
	if errors.As(err, &operr) {
		return retry.KindTransport
	}
	return retry.KindUnknown
}
