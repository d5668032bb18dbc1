package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/example/task-manager/domain/apperr"
)

// writeError translates err into a status code and an ErrorResponse.
// Internal failures are reported without their detail.
func writeError(c *fiber.Ctx, err error) error {
	status := apperr.HTTPStatus(err)
	resp := ErrorResponse{
		Error:   apperr.Code(err),
		Message: err.Error(),
	}

	var validErr *apperr.ValidationError
	if errors.As(err, &validErr) {
		resp.Field = validErr.Field
	}

	switch apperr.KindOf(err) {
	case apperr.KindUnauthenticated:
		c.Set(fiber.HeaderWWWAuthenticate, `Bearer realm="task-manager"`)
	case apperr.KindUnavailable:
		resp.Retryable = true
		resp.Message = "service temporarily unavailable"
	case apperr.KindInternal:
		resp.Message = "internal server error"
	}

	return c.Status(status).JSON(resp)
}

// errorHandler handles errors that escape the handlers, such as unknown
// routes or oversized bodies.
func errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code := "server_error"
		switch fiberErr.Code {
		case fiber.StatusNotFound:
			code = string(apperr.KindNotFound)
		case fiber.StatusMethodNotAllowed:
			code = "method_not_allowed"
		case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge:
			code = string(apperr.KindValidation)
		}
		return c.Status(fiberErr.Code).JSON(ErrorResponse{
			Error:   code,
			Message: fiberErr.Message,
		})
	}
	return writeError(c, err)
}
