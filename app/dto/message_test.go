package dto

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vibast-solutions/ms-go-mailqueue/app/entity"
)

var testLimits = Limits{MaxSubjectSize: 10, MaxTextSize: 20, MaxEmailAddressSize: 30}

func strPtr(s string) *string { return &s }

func newJSONContext(body string, contentType string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func TestCreateMessageRequestValidate(t *testing.T) {
	t.Parallel()

	valid := func() CreateMessageRequest {
		return CreateMessageRequest{To: strPtr("a@b.com"), Subject: strPtr("hello"), Text: strPtr("body")}
	}

	tests := []struct {
		name   string
		mutate func(*CreateMessageRequest)
		err    error
	}{
		{name: "valid", mutate: func(*CreateMessageRequest) {}, err: nil},
		{name: "missing to", mutate: func(r *CreateMessageRequest) { r.To = nil }, err: ErrInvalidRequest},
		{name: "missing text", mutate: func(r *CreateMessageRequest) { r.Text = nil }, err: ErrInvalidRequest},
		{name: "bad address", mutate: func(r *CreateMessageRequest) { r.To = strPtr("not_an_email") }, err: ErrInvalidRequest},
		{name: "display name", mutate: func(r *CreateMessageRequest) { r.To = strPtr("Bob <a@b.com>") }, err: ErrInvalidRequest},
		{name: "address too long", mutate: func(r *CreateMessageRequest) { r.To = strPtr(strings.Repeat("a", 30) + "@b.com") }, err: ErrInvalidRequest},
		{name: "subject too long", mutate: func(r *CreateMessageRequest) { r.Subject = strPtr(strings.Repeat("X", 11)) }, err: ErrInvalidRequest},
		{name: "subject at limit", mutate: func(r *CreateMessageRequest) { r.Subject = strPtr(strings.Repeat("é", 10)) }, err: nil},
		{name: "text too long", mutate: func(r *CreateMessageRequest) { r.Text = strPtr(strings.Repeat("X", 21)) }, err: ErrInvalidRequest},
		{name: "subject with newline", mutate: func(r *CreateMessageRequest) { r.Subject = strPtr("a\r\nBcc: x") }, err: ErrInvalidRequest},
		{name: "empty subject allowed", mutate: func(r *CreateMessageRequest) { r.Subject = strPtr("") }, err: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := valid()
			tc.mutate(&req)
			if err := req.Validate(testLimits); err != tc.err {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
		})
	}
}

func TestCreateMessageFromEchoContext(t *testing.T) {
	t.Parallel()

	ctx := newJSONContext(`{"to":"a@b.com","subject":"s","text":"t"}`, "application/json; charset=utf-8")
	req, err := CreateMessageFromEchoContext(ctx)
	if err != nil {
		t.Fatalf("CreateMessageFromEchoContext: %v", err)
	}
	if *req.To != "a@b.com" || *req.Subject != "s" || *req.Text != "t" {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestCreateMessageFromEchoContextErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		contentType string
		err         error
	}{
		{name: "no content type", body: `{}`, contentType: "", err: ErrUnsupportedMediaType},
		{name: "form content type", body: `to=a`, contentType: echo.MIMEApplicationForm, err: ErrUnsupportedMediaType},
		{name: "empty body", body: ``, contentType: echo.MIMEApplicationJSON, err: ErrMissingData},
		{name: "empty object", body: `{}`, contentType: echo.MIMEApplicationJSON, err: ErrMissingData},
		{name: "malformed", body: `{"to":`, contentType: echo.MIMEApplicationJSON, err: ErrInvalidRequest},
		{name: "wrong type", body: `{"to":5}`, contentType: echo.MIMEApplicationJSON, err: ErrInvalidRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := CreateMessageFromEchoContext(newJSONContext(tc.body, tc.contentType))
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
		})
	}
}

func TestListMessagesFromEchoContext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query  string
		limit  int
		offset int
		err    error
	}{
		{query: "", limit: 20, offset: 0},
		{query: "?limit=0", limit: 0, offset: 0},
		{query: "?limit=5&offset=1", limit: 5, offset: 1},
		{query: "?limit=-1", err: ErrInvalidLimit},
		{query: "?offset=-1", err: ErrInvalidOffset},
		{query: "?limit=abc", err: ErrInvalidLimit},
	}

	e := echo.New()
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodGet, "/messages"+tc.query, nil)
		ctx := e.NewContext(req, httptest.NewRecorder())

		got, err := ListMessagesFromEchoContext(ctx, 20, 0)
		if err != tc.err {
			t.Fatalf("%q: expected %v, got %v", tc.query, tc.err, err)
		}
		if err == nil && (got.Limit != tc.limit || got.Offset != tc.offset) {
			t.Fatalf("%q: unexpected paging %+v", tc.query, got)
		}
	}
}

func TestNewListMessagesResponseNeverNil(t *testing.T) {
	t.Parallel()

	resp := NewListMessagesResponse(nil, 3)
	if resp.Messages == nil || len(resp.Messages) != 0 || resp.Count != 3 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	msg := entity.NewMessage("a@b.com", "subj", "text", time.Now())
	resp = NewListMessagesResponse([]entity.Message{*msg}, 1)
	if resp.Messages[0].ID != msg.ID.String() || resp.Messages[0].Status != "PENDING" {
		t.Fatalf("unexpected item: %+v", resp.Messages[0])
	}
}
