package logger

import (
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

// WithRequest trả về một log entry gắn sẵn thông tin request (method, path, IP, request ID).
// Dùng trong handler và error handler để trace log theo request.
func WithRequest(c fiber.Ctx) *logrus.Entry {
	fields := logrus.Fields{
		"method": c.Method(),
		"path":   c.Path(),
		"ip":     c.IP(),
	}
	if requestID := c.Get("X-Request-ID"); requestID != "" {
		fields["requestId"] = requestID
	}
	return GetAppLogger().WithFields(fields)
}
