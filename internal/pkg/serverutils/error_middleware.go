package serverutils

import (
	"github.com/gofiber/fiber/v2"

	"classlive-be/internal/apperr"
)

// ErrorHandlerMiddleware maps the error taxonomy onto HTTP statuses:
// validation 400, not-found 404, ended-session 409, transient store 503.
// Anything unclassified is a 500.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		switch {
		case apperr.IsValidation(err):
			return ctx.Status(fiber.StatusBadRequest).JSON(ErrorResponse(err.Error()))
		case apperr.IsNotFound(err):
			return ctx.Status(fiber.StatusNotFound).JSON(ErrorResponse(err.Error()))
		case apperr.IsSessionEnded(err):
			return ctx.Status(fiber.StatusConflict).JSON(ErrorResponse(err.Error()))
		case apperr.IsTransient(err):
			return ctx.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse(err.Error()))
		}

		if fiberErr, ok := err.(*fiber.Error); ok {
			return ctx.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Message))
		}

		return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse("internal server error"))
	}
}
