package serverutils

import (
	"errors"

	"tarot-room-be/pkg/gateway"

	"github.com/gofiber/fiber/v2"
)

// AppError is an error that already knows how it should be rendered.
type AppError struct {
	Status  int
	Message string
	Err     error
}

func NewAppError(status int, message string) *AppError {
	return &AppError{Status: status, Message: message}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusOf maps an error to the HTTP status it is rendered with.
func StatusOf(err error) (int, string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status, appErr.Message
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, fiberErr.Message
	}
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		return fiber.StatusNotFound, err.Error()
	case errors.Is(err, gateway.ErrPermissionDenied):
		return fiber.StatusForbidden, err.Error()
	case errors.Is(err, gateway.ErrInvalid):
		return fiber.StatusUnprocessableEntity, err.Error()
	}
	return fiber.StatusInternalServerError, "internal server error"
}

// ErrorHandler renders any error returned by a handler as a BaseResponse.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	status, message := StatusOf(err)
	return ctx.Status(status).JSON(ErrorResponse(status, message))
}

func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if err := ctx.Next(); err != nil {
			return ErrorHandler(ctx, err)
		}
		return nil
	}
}
