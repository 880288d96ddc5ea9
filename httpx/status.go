package httpx

import "net/http"

const (
	StatusOK                  = http.StatusOK                    // Successful request
	StatusNoContent           = http.StatusNoContent             // Successful with no body
	StatusBadRequest          = http.StatusBadRequest            // Validation or malformed input
	StatusUnauthorized        = http.StatusUnauthorized          // Missing or invalid authentication
	StatusForbidden           = http.StatusForbidden             // Authenticated but lacks permission
	StatusNotFound            = http.StatusNotFound              // Key absent or expired
	StatusRequestTooLarge     = http.StatusRequestEntityTooLarge // Body over the configured limit
	StatusUnprocessableEntity = http.StatusUnprocessableEntity   // Value could not be encoded
	StatusInternalError       = http.StatusInternalServerError   // Unexpected server error
	StatusBadGateway          = http.StatusBadGateway            // Backend operation failed
	StatusServiceUnavailable  = http.StatusServiceUnavailable    // Backend unreachable
)
