package main

import (
	"github.com/sirupsen/logrus"

	authsvc "deal_commerce/internal/api/auth/service"
	seqsvc "deal_commerce/internal/api/sequence/service"
	"deal_commerce/internal/global"
)

// Tên các dịch vụ ngoài mà hệ thống giữ token. Trùng với giá trị
// của custom validator service_name.
const (
	ServiceCrm        = "crm"
	ServiceAccounting = "accounting"
)

// InitServices khởi tạo các service domain từ collections đã đăng ký.
// Fail fast nếu key mã hóa không hợp lệ: thà không chạy còn hơn chạy với
// key tạm rồi mất sạch token đã lưu sau restart.
func InitServices() (*authsvc.CredentialService, *seqsvc.ProjectNumberService) {
	cfg := global.ServerConfig

	cipher, err := authsvc.NewTokenCipher(cfg.TokenEncryptionKey)
	if err != nil {
		logrus.Fatalf("TOKEN_ENCRYPTION_KEY không hợp lệ: %v", err)
	}

	tokenCol, ok := global.RegistryCollections.Get(global.MongoDB_ColNames.AuthTokens)
	if !ok {
		logrus.Fatalf("Collection %s chưa được đăng ký", global.MongoDB_ColNames.AuthTokens)
	}
	counterCol, ok := global.RegistryCollections.Get(global.MongoDB_ColNames.SequenceCounters)
	if !ok {
		logrus.Fatalf("Collection %s chưa được đăng ký", global.MongoDB_ColNames.SequenceCounters)
	}

	// Refresh function cho từng dịch vụ ngoài - core không tự biết gọi provider nào
	refreshFns := map[string]authsvc.RefreshFunc{
		ServiceCrm: authsvc.NewOAuthRefreshFunc(authsvc.OAuthClientConfig{
			ClientID:     cfg.CrmClientID,
			ClientSecret: cfg.CrmClientSecret,
			TokenURL:     cfg.CrmTokenURL,
		}),
		ServiceAccounting: authsvc.NewOAuthRefreshFunc(authsvc.OAuthClientConfig{
			ClientID:     cfg.AccountingClientID,
			ClientSecret: cfg.AccountingClientSecret,
			TokenURL:     cfg.AccountingTokenURL,
		}),
	}

	tokenStore := authsvc.NewAuthTokenService(tokenCol)
	credentialService := authsvc.NewCredentialService(tokenStore, cipher, refreshFns)

	counterStore := seqsvc.NewSequenceCounterService(counterCol)
	projectNumberService := seqsvc.NewProjectNumberService(counterStore)

	logrus.Info("Initialized domain services")

	return credentialService, projectNumberService
}
