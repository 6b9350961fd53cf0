package httpx

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/apperr"
	"github.com/gofiber/fiber/v2"
)

type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

type Meta struct {
	Pagination *Pagination `json:"pagination,omitempty"`
}

type Pagination struct {
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Total   int64 `json:"total"`
	Pages   int   `json:"pages"`
	HasNext bool  `json:"hasNext"`
	HasPrev bool  `json:"hasPrev"`
}

type ErrorResponse struct {
	Success   bool                `json:"success"`
	Error     string              `json:"error"`
	Code      apperr.Code         `json:"code"`
	Errors    []apperr.FieldError `json:"errors,omitempty"`
	Details   map[string]any      `json:"details,omitempty"`
	Timestamp string              `json:"timestamp"`
}

func OK(c *fiber.Ctx, data any) error {
	return c.JSON(Response{Success: true, Data: data})
}

func OKWithMessage(c *fiber.Ctx, data any, message string) error {
	return c.JSON(Response{Success: true, Data: data, Message: message})
}

func Created(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(Response{Success: true, Data: data})
}

func Accepted(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusAccepted).JSON(Response{Success: true, Message: message})
}

func Message(c *fiber.Ctx, message string) error {
	return c.JSON(Response{Success: true, Message: message})
}

// Paginated renders a page of items with meta.pagination derived from total.
func Paginated(c *fiber.Ctx, data any, page Page, total int64) error {
	return c.JSON(Response{
		Success: true,
		Data:    data,
		Meta:    &Meta{Pagination: NewPagination(page, total)},
	})
}

func NewPagination(page Page, total int64) *Pagination {
	pages := 0
	if page.Limit > 0 {
		pages = int((total + int64(page.Limit) - 1) / int64(page.Limit))
	}
	return &Pagination{
		Page:    page.Page,
		Limit:   page.Limit,
		Total:   total,
		Pages:   pages,
		HasNext: page.Page < pages,
		HasPrev: page.Page > 1,
	}
}

// Fail renders err as the standard error envelope. Server errors are logged
// and, in production, their message is replaced.
func Fail(c *fiber.Ctx, err error, production bool) error {
	ae := classify(err)

	if ae.Status >= fiber.StatusInternalServerError {
		slog.Error("unhandled server error",
			"method", c.Method(),
			"path", c.Path(),
			"request_id", requestID(c),
			"error", err.Error(),
		)
	}

	message := ae.Message
	if production && ae.Status >= fiber.StatusInternalServerError {
		message = "Internal server error"
	} else if ae.Code == apperr.CodeInternal && ae.Err != nil && !production {
		message = ae.Err.Error()
	}

	if ae.RetryAfter > 0 && len(c.Response().Header.Peek(fiber.HeaderRetryAfter)) == 0 {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(ae.RetryAfter.Round(time.Second)/time.Second)))
	}

	return c.Status(ae.Status).JSON(ErrorResponse{
		Success:   false,
		Error:     message,
		Code:      ae.Code,
		Errors:    ae.Fields,
		Details:   ae.Meta,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// ErrorHandler is the fiber.Config ErrorHandler; every error returned by a
// handler or middleware ends up here.
func ErrorHandler(production bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		return Fail(c, err, production)
	}
}

func classify(err error) *apperr.Error {
	if ae, ok := apperr.As(err); ok {
		return ae
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		if fe.Code >= fiber.StatusInternalServerError {
			return apperr.Internal(err)
		}
		return apperr.FromStatus(fe.Code, fe.Message)
	}
	return apperr.Internal(err)
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return c.Get(fiber.HeaderXRequestID)
}
