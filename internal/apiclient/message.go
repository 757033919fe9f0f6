package apiclient

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultFallbackMessage is used when no better message can be derived
const DefaultFallbackMessage = "Something went wrong."

// NetworkMessage explains a transport-level failure to the user
const NetworkMessage = "Can't reach the server. Check your connection and make sure the backend is running, then try again."

// ErrorMessage derives a user-facing message from err.
//
// Preference order: network failure, server message/detail/error string,
// field validation errors ("field: message" per line), status default,
// the raw error text, then fallback.
func ErrorMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}

	if IsNetwork(err) {
		return NetworkMessage
	}

	var st ErrStatus
	if errors.As(err, &st) {
		if msg := serverMessage(st.Body); msg != "" {
			return msg
		}
		if msg := fieldErrors(st.Body); msg != "" {
			return msg
		}
		switch st.StatusCode {
		case http.StatusUnauthorized:
			return "Session expired."
		case http.StatusForbidden:
			return "Not allowed."
		case http.StatusNotFound:
			return "Not found."
		case http.StatusConflict:
			return "Conflict."
		}
	}

	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}

// serverMessage returns the first non-empty string among message, detail, error
func serverMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, field := range []string{"message", "detail", "error"} {
		r := gjson.GetBytes(body, field)
		if r.Type == gjson.String && r.Str != "" {
			return r.Str
		}
	}
	return ""
}

// fieldErrors renders {"errors": {"email": ["Invalid email"]}} as "email: Invalid email"
func fieldErrors(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	errs := gjson.GetBytes(body, "errors")
	if !errs.IsObject() {
		return ""
	}

	var lines []string
	errs.ForEach(func(field, value gjson.Result) bool {
		if value.IsArray() {
			items := value.Array()
			if len(items) == 0 {
				return true
			}
			value = items[0]
		}
		lines = append(lines, fmt.Sprintf("%s: %s", field.String(), value.String()))
		return true
	})
	return strings.Join(lines, "\n")
}
