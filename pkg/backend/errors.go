package backend

import (
	"context"
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// ErrorKind classifies a failed backend call.
type ErrorKind string

const (
	KindUnreachable ErrorKind = "unreachable"
	KindTimeout     ErrorKind = "timeout"
	KindCanceled    ErrorKind = "canceled"
	KindStatus      ErrorKind = "status"
	KindDecode      ErrorKind = "decode"
)

// TransportError is returned for every failure that prevented a well-formed
// backend answer: network errors, deadlines, cancellation, non-2xx statuses
// without a usable body and malformed JSON.
type TransportError struct {
	Op         string
	URL        string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("backend %s %s: %s", e.Op, e.URL, e.Kind)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AsTransportError unwraps err into a *TransportError if it is one.
func AsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) && te != nil {
		return te, true
	}
	return nil, false
}

// IsTimeout reports whether err is a backend call that ran past its deadline.
func IsTimeout(err error) bool {
	te, ok := AsTransportError(err)
	return ok && te.Kind == KindTimeout
}

// IsCanceled reports whether err is a backend call aborted by its caller.
func IsCanceled(err error) bool {
	te, ok := AsTransportError(err)
	return ok && te.Kind == KindCanceled
}

// classify turns an error from http.Client.Do into a TransportError. ctx is the
// request context; its state wins over the shape of err because the transport
// reports cancellation in several different wrappers.
func classify(ctx context.Context, op, url string, err error) *TransportError {
	te := &TransportError{Op: op, URL: url, Kind: KindUnreachable, Err: err}
	switch {
	case ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		te.Kind = KindTimeout
	case ctx != nil && errors.Is(ctx.Err(), context.Canceled):
		te.Kind = KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		te.Kind = KindTimeout
	case errors.Is(err, context.Canceled):
		te.Kind = KindCanceled
	default:
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			te.Kind = KindTimeout
		}
	}
	return te
}
