package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
)

// RejectionDetail describes one enrollment sample that was not accepted.
type RejectionDetail struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    "HTTP_ERROR",
					"message": fiberErr.Message,
				},
			})
		}

		// Enrollment rejections carry per-sample reasons.
		var tooFew *domain.TooFewSamplesError
		if errors.As(err, &tooFew) {
			rejected := make([]RejectionDetail, 0, len(tooFew.Rejected))
			for _, r := range tooFew.Rejected {
				rejected = append(rejected, RejectionDetail{Index: r.Index, Reason: r.Reason})
			}
			return c.Status(domain.ErrTooFewValidSamples.StatusCode).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    domain.ErrTooFewValidSamples.Code,
					"message": domain.ErrTooFewValidSamples.Message,
					"details": fiber.Map{
						"accepted": tooFew.Accepted,
						"required": tooFew.Required,
						"rejected": rejected,
					},
				},
			})
		}

		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			if appErr.StatusCode >= 500 {
				logger.Error("internal error",
					slog.String("code", appErr.Code),
					slog.String("message", appErr.Message),
					slog.Any("error", appErr.Err),
					slog.String("path", c.Path()),
				)
			}

			return c.Status(appErr.StatusCode).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    appErr.Code,
					"message": appErr.Message,
				},
			})
		}

		logger.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Path()),
		)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "INTERNAL_ERROR",
				"message": "An unexpected error occurred",
			},
		})
	}
}
