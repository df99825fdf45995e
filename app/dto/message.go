package dto

import (
	"errors"
	"mime"
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/vibast-solutions/ms-go-mailqueue/app/entity"
)

var (
	ErrUnsupportedMediaType = errors.New("content type must be application/json")
	ErrMissingData          = errors.New("missing request data")
	ErrInvalidRequest       = errors.New("invalid JSON, check required properties")
	ErrInvalidLimit         = errors.New("invalid limit")
	ErrInvalidOffset        = errors.New("invalid offset")
)

// Limits bounds the size of accepted fields, counted in characters.
type Limits struct {
	MaxSubjectSize      int
	MaxTextSize         int
	MaxEmailAddressSize int
}

type CreateMessageRequest struct {
	To      *string `json:"to"`
	Subject *string `json:"subject"`
	Text    *string `json:"text"`
}

// CreateMessageFromEchoContext checks the content type and binds the JSON body.
func CreateMessageFromEchoContext(ctx echo.Context) (CreateMessageRequest, error) {
	mediaType, _, err := mime.ParseMediaType(ctx.Request().Header.Get(echo.HeaderContentType))
	if err != nil || mediaType != echo.MIMEApplicationJSON {
		return CreateMessageRequest{}, ErrUnsupportedMediaType
	}

	var req CreateMessageRequest
	if err := ctx.Bind(&req); err != nil {
		return CreateMessageRequest{}, ErrInvalidRequest
	}
	if req.To == nil && req.Subject == nil && req.Text == nil {
		return CreateMessageRequest{}, ErrMissingData
	}
	return req, nil
}

// Validate checks required fields, the recipient format and size limits.
func (r *CreateMessageRequest) Validate(limits Limits) error {
	if r.To == nil || r.Subject == nil || r.Text == nil {
		return ErrInvalidRequest
	}

	addr, err := mail.ParseAddress(*r.To)
	if err != nil || addr.Address != *r.To {
		return ErrInvalidRequest
	}
	if tooLong(*r.To, limits.MaxEmailAddressSize) ||
		tooLong(*r.Subject, limits.MaxSubjectSize) ||
		tooLong(*r.Text, limits.MaxTextSize) {
		return ErrInvalidRequest
	}
	if strings.ContainsAny(*r.Subject, "\r\n") {
		return ErrInvalidRequest
	}
	return nil
}

func tooLong(value string, limit int) bool {
	return limit > 0 && utf8.RuneCountInString(value) > limit
}

type ListMessagesRequest struct {
	Limit  int
	Offset int
}

// ListMessagesFromEchoContext reads limit and offset query parameters, falling
// back to the given defaults when absent.
func ListMessagesFromEchoContext(ctx echo.Context, defaultLimit int, defaultOffset int) (ListMessagesRequest, error) {
	limit, err := intParam(ctx.QueryParam("limit"), defaultLimit)
	if err != nil || limit < 0 {
		return ListMessagesRequest{}, ErrInvalidLimit
	}
	offset, err := intParam(ctx.QueryParam("offset"), defaultOffset)
	if err != nil || offset < 0 {
		return ListMessagesRequest{}, ErrInvalidOffset
	}
	return ListMessagesRequest{Limit: limit, Offset: offset}, nil
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

type MessageResponse struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Status  string `json:"status"`
}

// NewMessageResponse renders the public view of a message.
func NewMessageResponse(m *entity.Message) MessageResponse {
	return MessageResponse{
		ID:      m.ID.String(),
		Subject: m.Subject,
		Status:  string(m.Status),
	}
}

type MessageDetailResponse struct {
	MessageResponse
	To        string     `json:"to"`
	Retries   int        `json:"retries"`
	Created   time.Time  `json:"created"`
	Processed *time.Time `json:"processed"`
}

func NewMessageDetailResponse(m *entity.Message) MessageDetailResponse {
	return MessageDetailResponse{
		MessageResponse: NewMessageResponse(m),
		To:              m.To,
		Retries:         m.Retries,
		Created:         m.Created,
		Processed:       m.Processed,
	}
}

type ListMessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
	Count    int               `json:"count"`
}

func NewListMessagesResponse(messages []entity.Message, count int) ListMessagesResponse {
	out := make([]MessageResponse, 0, len(messages))
	for i := range messages {
		out = append(out, NewMessageResponse(&messages[i]))
	}
	return ListMessagesResponse{Messages: out, Count: count}
}

type ErrorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func NewErrorResponse(status int, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorBody{Status: status, Message: message}}
}
