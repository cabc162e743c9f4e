package client

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestDecodeEnvelope(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantMsg string
		wantOut string
	}{
		{name: "data", status: 200, body: `{"data":{"name":"x"}}`, wantOut: "x"},
		{name: "empty data", status: 200, body: `{"data":null}`},
		{name: "no body", status: 204, body: ``},
		{name: "string error", status: 404, body: `{"error":"table not found"}`, wantErr: ErrNotFound, wantMsg: "table not found"},
		{name: "object error", status: 409, body: `{"error":{"message":"duplicate"}}`, wantErr: ErrConflict, wantMsg: "duplicate"},
		{name: "error with 200", status: 200, body: `{"error":"quota exceeded"}`, wantMsg: "quota exceeded"},
		{name: "unprocessable", status: 422, body: `{"error":"bad field"}`, wantErr: ErrBadRequest},
		{name: "html error", status: 502, body: `<html>bad gateway</html>`, wantMsg: "<html>bad gateway</html>"},
		{name: "forbidden", status: 403, body: `{}`, wantErr: ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Header: http.Header{}}
			var out struct {
				Name string `json:"name"`
			}
			err := decodeEnvelope(resp, []byte(tt.body), &out)

			if tt.wantErr == nil && tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("decodeEnvelope() error = %v", err)
				}
				if out.Name != tt.wantOut {
					t.Errorf("out.Name = %q, want %q", out.Name, tt.wantOut)
				}
				return
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("decodeEnvelope() error = %v, want *APIError", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.wantErr)
			}
			if tt.wantMsg != "" && apiErr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMsg)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	t.Parallel()

	err := &APIError{StatusCode: 401, RequestID: "01HX"}
	if got := err.Error(); !strings.Contains(got, "Unauthorized") || !strings.Contains(got, "01HX") {
		t.Errorf("Error() = %q", got)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("401 should not match ErrNotFound")
	}
}

func TestReadLimited(t *testing.T) {
	t.Parallel()

	if _, err := readLimited(strings.NewReader("abcd"), 3); !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("readLimited() error = %v, want ErrBodyTooLarge", err)
	}
	b, err := readLimited(strings.NewReader("abc"), 3)
	if err != nil || string(b) != "abc" {
		t.Errorf("readLimited() = %q, %v", b, err)
	}
}
