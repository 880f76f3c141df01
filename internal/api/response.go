package api

import "github.com/gofiber/fiber/v2"

// ErrorResponse mirrors the market-data envelope so clients parse one shape.
type ErrorResponse struct {
	Status    bool     `json:"status"`
	Message   string   `json:"message"`
	ErrorCode string   `json:"errorcode"`
	Data      []string `json:"data"`
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Status:    false,
		Message:   err.Error(),
		ErrorCode: "INVALID_PARAMETER",
		Data:      []string{},
	})
}
