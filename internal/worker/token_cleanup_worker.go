package worker

import (
	"context"
	"time"

	authsvc "deal_commerce/internal/api/auth/service"
	"deal_commerce/internal/logger"
)

// TokenCleanupWorker dọn kho token định kỳ theo hai pha: thu hồi token hết hạn
// quá lâu, xóa hẳn token đã thu hồi và nằm im quá lâu.
// Chạy nền để collection auth_tokens không phình ra vì token chết.
type TokenCleanupWorker struct {
	credentialService *authsvc.CredentialService
	interval          time.Duration // Khoảng thời gian giữa các lần chạy
	retention         time.Duration // Token hết hạn/inactive lâu hơn khoảng này sẽ bị dọn
}

// NewTokenCleanupWorker tạo mới TokenCleanupWorker
// Tham số:
//   - interval: Khoảng thời gian giữa các lần chạy (mặc định: 1 giờ)
//   - retention: Thời gian giữ lại token đã thu hồi (mặc định: 30 ngày)
func NewTokenCleanupWorker(credentialService *authsvc.CredentialService, interval, retention time.Duration) *TokenCleanupWorker {
	// Set defaults
	if interval < time.Minute {
		interval = time.Hour
	}
	if retention < 24*time.Hour {
		retention = authsvc.DefaultCleanupRetention
	}

	return &TokenCleanupWorker{
		credentialService: credentialService,
		interval:          interval,
		retention:         retention,
	}
}

// Start bắt đầu background worker dọn token chết.
// Worker chạy định kỳ theo interval cho đến khi ctx bị hủy.
func (w *TokenCleanupWorker) Start(ctx context.Context) {
	log := logger.GetAppLogger()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.WithFields(map[string]interface{}{
		"interval":  w.interval.String(),
		"retention": w.retention.String(),
	}).Info("🧹 [TOKEN_CLEANUP] Starting Token Cleanup Worker...")

	for {
		select {
		case <-ctx.Done():
			log.Info("🧹 [TOKEN_CLEANUP] Token Cleanup Worker stopped")
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.WithFields(map[string]interface{}{
							"panic": r,
						}).Error("🧹 [TOKEN_CLEANUP] Panic khi dọn token, sẽ tiếp tục ở lần chạy tiếp theo")
					}
				}()

				result, err := w.credentialService.CleanupExpired(ctx, w.retention)
				if err != nil {
					log.WithError(err).Error("🧹 [TOKEN_CLEANUP] Failed to cleanup expired tokens")
					return
				}

				if result.DeactivatedCount > 0 || result.DeletedCount > 0 {
					log.WithFields(map[string]interface{}{
						"deactivatedCount": result.DeactivatedCount,
						"deletedCount":     result.DeletedCount,
						"retention":        w.retention.String(),
					}).Info("🧹 [TOKEN_CLEANUP] Cleaned up expired tokens")
				}
				// Nếu không có gì để dọn, không log (giảm log noise)
			}()
		}
	}
}
