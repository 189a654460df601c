package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failed remote call.
type Kind string

const (
	KindNetwork    Kind = "network"
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindNotFound   Kind = "not_found"
	KindRemote     Kind = "remote"
)

const networkErrorMessage = "Network error"

// FieldError is one structured validation failure returned by the backend.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError represents a remote API error response, or a call that never got one.
type APIError struct {
	Status  int
	Kind    Kind
	Message string
	Code    string
	Fields  []FieldError
	Err     error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a remote 404.
func IsNotFound(err error) bool { return kindOf(err) == KindNotFound }

// IsAuth reports whether err is a remote 401.
func IsAuth(err error) bool { return kindOf(err) == KindAuth }

// IsValidation reports whether err carries structured field errors.
func IsValidation(err error) bool { return kindOf(err) == KindValidation }

// IsNetwork reports whether the request never reached the backend.
func IsNetwork(err error) bool { return kindOf(err) == KindNetwork }

func kindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// Message extracts the user-facing message of err, falling back to fallback.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Message) != "" {
		return apiErr.Message
	}
	if err != nil && fallback == "" {
		return err.Error()
	}
	return fallback
}

func networkError(err error) *APIError {
	return &APIError{Kind: KindNetwork, Message: networkErrorMessage, Err: err}
}

// errorBody covers the error envelopes the backend produces: FastAPI style
// {"detail": "..."} or {"detail": [{"loc": [...], "msg": "..."}]}, and plain
// {"message": "..."} / {"error": "..."}.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Errors  []FieldError    `json:"errors"`
}

type detailItem struct {
	Loc     []any  `json:"loc"`
	Msg     string `json:"msg"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func decodeError(status int, statusText string, raw []byte) *APIError {
	apiErr := &APIError{Status: status, Kind: kindForStatus(status)}
	var body errorBody
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}
	apiErr.Code = strings.TrimSpace(body.Code)

	fields := append([]FieldError(nil), body.Errors...)
	var detailText string
	if len(body.Detail) > 0 {
		var items []detailItem
		if err := json.Unmarshal(body.Detail, &items); err == nil {
			for _, item := range items {
				fields = append(fields, item.fieldError())
			}
		} else {
			_ = json.Unmarshal(body.Detail, &detailText)
		}
	}
	if len(fields) > 0 {
		apiErr.Fields = fields
		if apiErr.Kind == KindRemote && status == http.StatusBadRequest {
			apiErr.Kind = KindValidation
		}
	}

	switch {
	case len(fields) > 0:
		apiErr.Message = joinFieldMessages(fields)
	case strings.TrimSpace(detailText) != "":
		apiErr.Message = detailText
	case strings.TrimSpace(body.Message) != "":
		apiErr.Message = body.Message
	case strings.TrimSpace(body.Error) != "":
		apiErr.Message = body.Error
	default:
		apiErr.Message = statusText
	}
	return apiErr
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized:
		return KindAuth
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusUnprocessableEntity:
		return KindValidation
	default:
		return KindRemote
	}
}

func (d detailItem) fieldError() FieldError {
	field := d.Field
	if field == "" && len(d.Loc) > 0 {
		parts := make([]string, 0, len(d.Loc))
		for _, l := range d.Loc {
			s := fmt.Sprint(l)
			if s == "body" || s == "query" {
				continue
			}
			parts = append(parts, s)
		}
		field = strings.Join(parts, ".")
	}
	msg := d.Msg
	if msg == "" {
		msg = d.Message
	}
	return FieldError{Field: field, Message: msg}
}

func joinFieldMessages(fields []FieldError) string {
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		if strings.TrimSpace(f.Message) == "" {
			continue
		}
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, ", ")
}
