package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a tagged remote failure. Permanent errors are validation
// rejections the server will repeat on every retry; everything else
// (network, timeout, 5xx) is treated as transient. The queue policy is
// uniform retry either way; the tag only feeds operator diagnostics.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("remote: %s", e.Message)
}

// Permanent reports whether retrying the same call can ever succeed.
func (e *Error) Permanent() bool {
	switch e.Status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return e.Status >= 400 && e.Status < 500
}

// IsPermanent reports whether err is a tagged permanent remote failure.
func IsPermanent(err error) bool {
	var remoteErr *Error
	return errors.As(err, &remoteErr) && remoteErr.Permanent()
}
