package cellular

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Outcome is the result of driving a check URL over cellular data. It is
// either a NetworkError or an HTTPResult.
type Outcome interface {
	outcome()
}

// NetworkError reports that the check URL could not be reached over the
// cellular interface.
type NetworkError struct {
	Description string
}

// HTTPResult carries the final status and decoded body after redirects.
type HTTPResult struct {
	Status int
	Body   Body
}

func (NetworkError) outcome() {}
func (HTTPResult) outcome()   {}

// Body is the decoded terminal response: either an ExchangeCode or an ErrorBody.
type Body interface {
	body()
}

// ExchangeCode is returned by the provider once the device reached the check
// URL over its mobile network.
type ExchangeCode struct {
	CheckID string
	Code    string
}

// ErrorBody is a verification failure reported by the provider, or a body
// that matched none of the known shapes (Malformed).
type ErrorBody struct {
	Error       string
	Description string
	Malformed   bool
}

func (ExchangeCode) body() {}
func (ErrorBody) body()    {}

const (
	errInvalidResponse = "invalid_response"
	errHTTP            = "http_error"
	maxDetailBytes     = 200
)

type wireBody struct {
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	CheckID          string          `json:"check_id"`
	Code             string          `json:"code"`
	HTTPStatus       int             `json:"http_status"`
	ResponseBody     json.RawMessage `json:"response_body"`
}

// DecodeBody classifies a terminal response. It returns the effective status,
// which is the wrapped http_status when the provider nests its response
// inside a 200 envelope.
func DecodeBody(status int, raw []byte) (int, Body) {
	var w wireBody
	if err := json.Unmarshal(raw, &w); err != nil {
		return status, unexpected(status, raw)
	}
	if w.Error != "" {
		return status, ErrorBody{Error: w.Error, Description: w.ErrorDescription}
	}
	if inner := w.ResponseBody; len(inner) > 0 && string(inner) != "null" {
		effective := status
		if status == http.StatusOK && w.HTTPStatus != 0 {
			effective = w.HTTPStatus
		}
		var iw wireBody
		if err := json.Unmarshal(inner, &iw); err != nil {
			return effective, unexpected(effective, inner)
		}
		return effective, flat(effective, iw, inner)
	}
	return status, flat(status, w, raw)
}

func flat(status int, w wireBody, raw []byte) Body {
	switch {
	case w.Error != "":
		return ErrorBody{Error: w.Error, Description: w.ErrorDescription}
	case status == http.StatusOK && w.CheckID != "" && w.Code != "":
		return ExchangeCode{CheckID: w.CheckID, Code: w.Code}
	default:
		return unexpected(status, raw)
	}
}

func unexpected(status int, raw []byte) ErrorBody {
	detail := truncate(strings.TrimSpace(string(raw)), maxDetailBytes)
	if status == http.StatusOK {
		if detail == "" {
			detail = "empty response body"
		}
		return ErrorBody{Error: errInvalidResponse, Description: detail, Malformed: true}
	}
	if detail == "" {
		detail = http.StatusText(status)
	}
	return ErrorBody{Error: errHTTP, Description: detail}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
