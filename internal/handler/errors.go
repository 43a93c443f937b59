package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/mathieu-neron/toptabled/internal/logging"
	"github.com/mathieu-neron/toptabled/internal/middleware"
	"github.com/mathieu-neron/toptabled/internal/service"
)

// serviceError maps service errors onto the API error envelope.
func serviceError(c fiber.Ctx, err error, fallback string) error {
	var (
		wErr *service.RemoteWriteError
		rErr *service.RemoteReadError
	)
	switch {
	case errors.Is(err, service.ErrNotAuthenticated):
		return middleware.ErrorResponse(c, fiber.StatusUnauthorized, "NOT_AUTHENTICATED", "Sign in to vote")
	case errors.Is(err, service.ErrInvalidIdentity):
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_IDENTITY", err.Error())
	case errors.Is(err, service.ErrInvalidDirection):
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_DIRECTION", err.Error())
	case errors.Is(err, service.ErrInvalidSubmission):
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_SUBMISSION", err.Error())
	case errors.Is(err, service.ErrItemNotFound):
		return middleware.ErrorResponse(c, fiber.StatusNotFound, "NOT_FOUND", "Item not found")
	case errors.As(err, &wErr):
		logging.Logger.Warn().Err(err).Msg("remote write failed")
		return middleware.ErrorResponse(c, fiber.StatusBadGateway, "REMOTE_WRITE_FAILED", "Could not save, please try again")
	case errors.As(err, &rErr):
		logging.Logger.Warn().Err(err).Msg("remote read failed")
		return middleware.ErrorResponse(c, fiber.StatusBadGateway, "REMOTE_READ_FAILED", fallback)
	default:
		logging.Logger.Error().Err(err).Msg(fallback)
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", fallback)
	}
}
