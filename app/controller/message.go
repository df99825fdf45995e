package controller

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vibast-solutions/ms-go-mailqueue/app/dto"
	"github.com/vibast-solutions/ms-go-mailqueue/app/repository"
	"github.com/vibast-solutions/ms-go-mailqueue/app/service"
)

// Paging holds list defaults used when the query omits limit or offset.
type Paging struct {
	DefaultLimit  int
	DefaultOffset int
}

type MessageController struct {
	messages *service.MessageService
	limits   dto.Limits
	paging   Paging
}

// NewMessageController constructs the HTTP message controller.
func NewMessageController(messages *service.MessageService, limits dto.Limits, paging Paging) *MessageController {
	return &MessageController{messages: messages, limits: limits, paging: paging}
}

// Create validates, stores and enqueues a new message.
func (c *MessageController) Create(ctx echo.Context) error {
	req, err := dto.CreateMessageFromEchoContext(ctx)
	if err != nil {
		if errors.Is(err, dto.ErrUnsupportedMediaType) {
			return errorJSON(ctx, http.StatusUnsupportedMediaType, http.StatusText(http.StatusUnsupportedMediaType))
		}
		return errorJSON(ctx, http.StatusBadRequest, err.Error())
	}
	if err := req.Validate(c.limits); err != nil {
		return errorJSON(ctx, http.StatusBadRequest, err.Error())
	}

	msg, err := c.messages.Submit(ctx.Request().Context(), *req.To, *req.Subject, *req.Text)
	if err != nil {
		return errorJSON(ctx, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}

	ctx.Response().Header().Set(echo.HeaderLocation, fmt.Sprintf("%s://%s/messages/%s", ctx.Scheme(), ctx.Request().Host, msg.ID))
	return ctx.JSON(http.StatusCreated, dto.NewMessageResponse(msg))
}

// List returns a page of messages, newest first, with the total count.
func (c *MessageController) List(ctx echo.Context) error {
	req, err := dto.ListMessagesFromEchoContext(ctx, c.paging.DefaultLimit, c.paging.DefaultOffset)
	if err != nil {
		return errorJSON(ctx, http.StatusBadRequest, err.Error())
	}

	messages, count, err := c.messages.List(ctx.Request().Context(), req.Limit, req.Offset)
	if err != nil {
		return errorJSON(ctx, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
	return ctx.JSON(http.StatusOK, dto.NewListMessagesResponse(messages, count))
}

// Get returns one message by id.
func (c *MessageController) Get(ctx echo.Context) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return errorJSON(ctx, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	}

	msg, err := c.messages.Get(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errorJSON(ctx, http.StatusNotFound, http.StatusText(http.StatusNotFound))
		}
		return errorJSON(ctx, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
	return ctx.JSON(http.StatusOK, dto.NewMessageDetailResponse(msg))
}

// Health reports liveness.
func (c *MessageController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func errorJSON(ctx echo.Context, status int, message string) error {
	return ctx.JSON(status, dto.NewErrorResponse(status, message))
}

// HTTPErrorHandler renders router and middleware errors in the API error shape.
func HTTPErrorHandler(err error, ctx echo.Context) {
	if ctx.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
	}
	if ctx.Request().Method == http.MethodHead {
		_ = ctx.NoContent(status)
		return
	}
	_ = errorJSON(ctx, status, http.StatusText(status))
}
