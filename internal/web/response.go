package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/skyward-school/skyward/internal/auth"
	"github.com/skyward-school/skyward/internal/email"
	"github.com/skyward-school/skyward/internal/errorz"
	"github.com/skyward-school/skyward/internal/reset"
)

// response is the body of every API response.
type response struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Role     string `json:"role,omitempty"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
}

// messages are the texts a route responds with.
type messages struct {
	success string
	// missing is used when a required field is empty.
	missing string
	// invalid is used for invalid input that has no specific message.
	invalid string
}

var msgDefault = messages{
	success: "OK",
	missing: "Missing required fields",
	invalid: "Invalid input",
}

// fieldMessages are shown for invalid fields regardless of the route.
var fieldMessages = []struct {
	err error
	msg string
}{
	{email.ErrInvalidEmail, "Invalid email"},
	{auth.ErrInvalidUsername, "Invalid username (3-50 chars: letters, numbers, _, -, .)"},
	{auth.ErrPasswordTooShort, "Password must be at least 8 characters"},
	{reset.ErrInvalidCode, "Invalid or expired code"},
}

func writeJSON(w http.ResponseWriter, status int, res response) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(res)
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, msgs messages, err error) {
	status, msg := errorResponse(msgs, err)
	if status >= http.StatusInternalServerError {
		s.deps.Logger.Error("internal server error", "url", r.URL.String(), "error", err)
	}

	err = writeJSON(w, status, response{Message: msg})
	if err != nil {
		s.deps.Logger.Error("failed to write error response", "url", r.URL.String(), "error", err)
	}
}

func errorResponse(msgs messages, err error) (int, string) {
	var invalidInput errorz.InvalidInput
	switch {
	case errors.As(err, &invalidInput):
		return http.StatusBadRequest, inputMessage(msgs, invalidInput)
	case errors.Is(err, reset.ErrRateLimited):
		return http.StatusTooManyRequests, "Try again later"
	case errors.Is(err, reset.ErrInvalidOrExpiredCode):
		return http.StatusBadRequest, "Invalid or expired code"
	case errors.Is(err, reset.ErrAccountNotFound):
		return http.StatusNotFound, "Account not found"
	case errors.Is(err, reset.ErrNotifier):
		return http.StatusInternalServerError, "Failed to send email"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid username or password"
	case errors.Is(err, auth.ErrDuplicateUser):
		return http.StatusConflict, "Username or email already in use"
	default:
		return http.StatusInternalServerError, "Server error"
	}
}

// inputMessage picks a single message for the client. Missing fields
// take precedence over invalid ones.
func inputMessage(msgs messages, invalidInput errorz.InvalidInput) string {
	if errors.Is(invalidInput, errorz.ErrMissingField) {
		return msgs.missing
	}

	for _, err := range invalidInput {
		for _, fm := range fieldMessages {
			if errors.Is(err, fm.err) {
				return fm.msg
			}
		}
	}

	return msgs.invalid
}
