package llm

import (
	"context"
	"errors"
	"net"
	"net/url"

	"cityalert/internal/failure"

	"github.com/openai/openai-go"
)

// classify maps provider errors onto the failure taxonomy. Errors already
// carrying a kind pass through.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if failure.KindOf(err) != failure.KindUnknown {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return failure.Network(op, err)
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &failure.Error{Kind: failure.KindRemote, Op: op, Status: apiErr.StatusCode, Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return failure.Network(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return failure.Network(op, err)
	}
	if errors.Is(err, ErrEmptyReply) {
		return failure.Protocol(op, 0, err)
	}
	return &failure.Error{Kind: failure.KindRemote, Op: op, Err: err}
}
