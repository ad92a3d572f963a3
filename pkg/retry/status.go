package retry

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
)

// HTTPStatuser is implemented by errors that carry a transport status code.
type HTTPStatuser interface {
	HTTPStatus() int
}

// StatusError is a plain error with a status code, for callers that are not
// going through the google API client.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return http.StatusText(e.Code)
	}
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error   { return e.Err }
func (e *StatusError) HTTPStatus() int { return e.Code }

// StatusCode extracts the transport status code from err. Connection-level
// failures carry no code and report ok=false.
func StatusCode(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code > 0 {
		return gerr.Code, true
	}
	var hs HTTPStatuser
	if errors.As(err, &hs) && hs.HTTPStatus() > 0 {
		return hs.HTTPStatus(), true
	}
	return 0, false
}
