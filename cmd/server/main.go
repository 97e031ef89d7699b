package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deal_commerce/internal/database"
	"deal_commerce/internal/global"
	"deal_commerce/internal/logger"
	"deal_commerce/internal/worker"
)

// initLogger khởi tạo và cấu hình logger cho toàn bộ ứng dụng
func initLogger() {
	// Logger tự động đọc environment variables để cấu hình
	if err := logger.Init(nil); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	log := logger.GetAppLogger()
	log.Info("Logger system initialized successfully")
}

// Hàm main
func main() {
	// Khởi tạo logger
	initLogger()

	// Khởi tạo các biến toàn cục (config, validator, MongoDB, indexes)
	InitGlobal()

	// Khởi tạo registry collections
	InitRegistry()

	// Khởi tạo các service domain
	credentialService, projectNumberService := InitServices()

	log := logger.GetAppLogger()

	// Context điều khiển vòng đời các background worker
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Worker dọn token chết chạy nền
	cleanupWorker := worker.NewTokenCleanupWorker(credentialService, time.Hour, 30*24*time.Hour)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(map[string]interface{}{
					"panic": r,
				}).Error("🧹 [TOKEN_CLEANUP] Worker goroutine panic")
			}
		}()
		cleanupWorker.Start(ctx)
	}()

	// Khởi tạo Fiber app với các middleware và routes
	app := InitFiberApp(credentialService, projectNumberService)

	// Bắt signal để shutdown có trật tự: dừng nhận request, dừng worker,
	// đóng cache và kết nối MongoDB
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		log.WithFields(map[string]interface{}{
			"signal": sig.String(),
		}).Info("Shutting down server...")

		cancel()
		credentialService.Close()

		if err := app.Shutdown(); err != nil {
			log.WithError(err).Error("Error during server shutdown")
		}

		if err := database.CloseInstance(global.MongoDB_Session); err != nil {
			log.WithError(err).Error("Error closing MongoDB connection")
		}
	}()

	// Chạy Fiber server trên main thread
	address := ":" + global.ServerConfig.Address
	log.WithFields(map[string]interface{}{
		"address": address,
	}).Info("Starting Fiber server...")

	if err := app.Listen(address); err != nil {
		log.Fatalf("Error in Fiber Listen: %v", err)
	}

	log.Info("Server stopped")
}
