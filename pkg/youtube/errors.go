package youtube

import (
	"net/http"

	"github.com/canopy-network/ytwarehouse/pkg/retry"
)

// IsNotFound reports whether err carries a 404 status.
func IsNotFound(err error) bool {
	code, ok := retry.StatusCode(err)
	return ok && code == http.StatusNotFound
}
