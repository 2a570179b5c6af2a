package cellular

import (
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDecodeBody(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		raw        string
		wantStatus int
		want       Body
	}{
		{
			name:       "exchange code",
			status:     http.StatusOK,
			raw:        `{"check_id":"c1","code":"xyz"}`,
			wantStatus: http.StatusOK,
			want:       ExchangeCode{CheckID: "c1", Code: "xyz"},
		},
		{
			name:       "wrapped exchange code",
			status:     http.StatusOK,
			raw:        `{"http_status":200,"response_body":{"check_id":"c1","code":"xyz"}}`,
			wantStatus: http.StatusOK,
			want:       ExchangeCode{CheckID: "c1", Code: "xyz"},
		},
		{
			name:       "error inside 200 is never an exchange code",
			status:     http.StatusOK,
			raw:        `{"check_id":"c1","code":"xyz","error":"sim_changed","error_description":"SIM swapped"}`,
			wantStatus: http.StatusOK,
			want:       ErrorBody{Error: "sim_changed", Description: "SIM swapped"},
		},
		{
			name:       "top level error",
			status:     http.StatusBadRequest,
			raw:        `{"error":"mno_redirect_unsupported","error_description":"unsupported network"}`,
			wantStatus: http.StatusBadRequest,
			want:       ErrorBody{Error: "mno_redirect_unsupported", Description: "unsupported network"},
		},
		{
			name:       "wrapped error takes wrapped status",
			status:     http.StatusOK,
			raw:        `{"http_status":400,"response_body":{"error":"invalid_request","error_description":"check expired"}}`,
			wantStatus: http.StatusBadRequest,
			want:       ErrorBody{Error: "invalid_request", Description: "check expired"},
		},
		{
			name:       "wrapped code under error status",
			status:     http.StatusOK,
			raw:        `{"http_status":500,"response_body":{"check_id":"c1","code":"xyz"}}`,
			wantStatus: http.StatusInternalServerError,
			want:       ErrorBody{Error: errHTTP, Description: `{"check_id":"c1","code":"xyz"}`},
		},
		{
			name:       "200 missing code is malformed",
			status:     http.StatusOK,
			raw:        `{"check_id":"c1"}`,
			wantStatus: http.StatusOK,
			want:       ErrorBody{Error: errInvalidResponse, Description: `{"check_id":"c1"}`, Malformed: true},
		},
		{
			name:       "non json 200 is malformed",
			status:     http.StatusOK,
			raw:        `<html>ok</html>`,
			wantStatus: http.StatusOK,
			want:       ErrorBody{Error: errInvalidResponse, Description: `<html>ok</html>`, Malformed: true},
		},
		{
			name:       "empty error status",
			status:     http.StatusBadGateway,
			raw:        ``,
			wantStatus: http.StatusBadGateway,
			want:       ErrorBody{Error: errHTTP, Description: "Bad Gateway"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := DecodeBody(tc.status, []byte(tc.raw))
			if status != tc.wantStatus {
				t.Fatalf("status = %d, want %d", status, tc.wantStatus)
			}
			if body != tc.want {
				t.Fatalf("body = %#v, want %#v", body, tc.want)
			}
		})
	}
}

func TestDecodeBodyTruncatesOnRuneBoundary(t *testing.T) {
	// 199 ASCII bytes followed by a two-byte rune straddle the detail limit.
	raw := strings.Repeat("a", maxDetailBytes-1) + "é" + "tail"
	_, body := DecodeBody(http.StatusBadGateway, []byte(raw))
	eb, ok := body.(ErrorBody)
	if !ok {
		t.Fatalf("expected ErrorBody, got %T", body)
	}
	if !utf8.ValidString(eb.Description) {
		t.Fatalf("description is not valid UTF-8: %q", eb.Description)
	}
	if eb.Description != strings.Repeat("a", maxDetailBytes-1) {
		t.Fatalf("unexpected description %q", eb.Description)
	}
}
