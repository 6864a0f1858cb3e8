package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/luxuryfashion/storefront/pkg/errors"
)

// providerError is the OAuth 2.0 error body shape (RFC 6749 section 5.2).
type providerError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ParseResponseError consumes and closes a non-2xx response from an external
// provider and maps it onto an AppError. Credential rejections become 401;
// provider outages become 503 so callers can tell them apart.
func ParseResponseError(resp *http.Response, provider string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", provider, resp.StatusCode, err)
	}

	detail := http.StatusText(resp.StatusCode)
	var pe providerError
	if json.Unmarshal(body, &pe) == nil && pe.Error != "" {
		detail = pe.Error
		if pe.ErrorDescription != "" {
			detail += ": " + pe.ErrorDescription
		}
	}
	cause := fmt.Errorf("%s returned status %d: %s", provider, resp.StatusCode, detail)

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return apperrors.UnauthorizedCode("PROVIDER_REJECTED", provider+" rejected the credentials", cause)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return apperrors.ServiceUnavailable(cause)
	default:
		return cause
	}
}
