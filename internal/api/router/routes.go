// Package router đăng ký toàn bộ route của API lên Fiber app.
package router

import (
	"github.com/gofiber/fiber/v3"

	authhdl "deal_commerce/internal/api/auth/handler"
	authsvc "deal_commerce/internal/api/auth/service"
	basehdl "deal_commerce/internal/api/base/handler"
	seqhdl "deal_commerce/internal/api/sequence/handler"
	seqsvc "deal_commerce/internal/api/sequence/service"
)

// Register đăng ký route cho hai domain credential và sequence lên /api/v1
func Register(app *fiber.App, credentialSvc *authsvc.CredentialService, projectNumberSvc *seqsvc.ProjectNumberService) {
	v1 := app.Group("/api/v1")

	// Health check cho load balancer
	app.Get("/health", func(c fiber.Ctx) error {
		return basehdl.JSONResponse(c, 200, fiber.Map{"status": "ok"})
	})

	credentialHandler := authhdl.NewCredentialHandler(credentialSvc)
	credentials := v1.Group("/credentials")
	credentials.Post("/", credentialHandler.HandleStoreToken)
	credentials.Post("/access-token", credentialHandler.HandleGetAccessToken)
	credentials.Post("/deactivate", credentialHandler.HandleDeactivateToken)
	credentials.Post("/cleanup", credentialHandler.HandleCleanup)
	credentials.Get("/statistics", credentialHandler.HandleStatistics)

	projectNumberHandler := seqhdl.NewProjectNumberHandler(projectNumberSvc)
	sequences := v1.Group("/sequences")
	sequences.Post("/project-number", projectNumberHandler.HandleNextProjectNumber)
	sequences.Get("/status", projectNumberHandler.HandleCounterStatus)
}
