// Package authhdl - Handler vòng đời token OAuth.
package authhdl

import (
	"github.com/gofiber/fiber/v3"

	authdto "deal_commerce/internal/api/auth/dto"
	"deal_commerce/internal/api/auth/models"
	authsvc "deal_commerce/internal/api/auth/service"
	basehdl "deal_commerce/internal/api/base/handler"
)

// CredentialHandler xử lý API lưu / đọc / thu hồi token
type CredentialHandler struct {
	CredentialService *authsvc.CredentialService
}

// NewCredentialHandler tạo CredentialHandler mới
func NewCredentialHandler(svc *authsvc.CredentialService) *CredentialHandler {
	return &CredentialHandler{CredentialService: svc}
}

// HandleStoreToken xử lý POST /credentials — lưu cặp token sau khi hoàn tất OAuth flow.
// Ghi đè token cũ của cùng (accountId, serviceName) nếu có.
func (h *CredentialHandler) HandleStoreToken(c fiber.Ctx) error {
	return basehdl.SafeHandler(c, func() error {
		var input authdto.TokenStoreInput
		if err := basehdl.ParseAndValidate(c, &input); err != nil {
			return basehdl.HandleResponse(c, nil, err)
		}

		err := h.CredentialService.Store(c.Context(), input.AccountID, input.Service, models.TokenPair{
			AccessToken:  input.AccessToken,
			RefreshToken: input.RefreshToken,
			ExpiresAt:    input.ExpiresAt,
		})
		return basehdl.HandleResponse(c, nil, err)
	})
}

// HandleGetAccessToken xử lý POST /credentials/access-token — trả về access token
// còn hạn, tự refresh nếu đã hết hạn.
func (h *CredentialHandler) HandleGetAccessToken(c fiber.Ctx) error {
	return basehdl.SafeHandler(c, func() error {
		var input authdto.TokenQueryInput
		if err := basehdl.ParseAndValidate(c, &input); err != nil {
			return basehdl.HandleResponse(c, nil, err)
		}

		accessToken, err := h.CredentialService.GetValidAccessToken(c.Context(), input.AccountID, input.Service)
		if err != nil {
			return basehdl.HandleResponse(c, nil, err)
		}

		return basehdl.HandleResponse(c, authdto.AccessTokenOutput{AccessToken: accessToken}, nil)
	})
}

// HandleDeactivateToken xử lý POST /credentials/deactivate — thu hồi token
// khi user ngắt kết nối một dịch vụ.
func (h *CredentialHandler) HandleDeactivateToken(c fiber.Ctx) error {
	return basehdl.SafeHandler(c, func() error {
		var input authdto.TokenQueryInput
		if err := basehdl.ParseAndValidate(c, &input); err != nil {
			return basehdl.HandleResponse(c, nil, err)
		}

		err := h.CredentialService.Deactivate(c.Context(), input.AccountID, input.Service)
		return basehdl.HandleResponse(c, nil, err)
	})
}

// HandleCleanup xử lý POST /credentials/cleanup — chạy dọn dẹp kho token ngay
// thay vì đợi worker định kỳ. Trả về số token bị thu hồi và bị xóa.
func (h *CredentialHandler) HandleCleanup(c fiber.Ctx) error {
	return basehdl.SafeHandler(c, func() error {
		result, err := h.CredentialService.CleanupExpired(c.Context(), authsvc.DefaultCleanupRetention)
		if err != nil {
			return basehdl.HandleResponse(c, nil, err)
		}
		return basehdl.HandleResponse(c, result, nil)
	})
}

// HandleStatistics xử lý GET /credentials/statistics — số liệu giám sát kho token
func (h *CredentialHandler) HandleStatistics(c fiber.Ctx) error {
	return basehdl.SafeHandler(c, func() error {
		stats, err := h.CredentialService.Statistics(c.Context())
		if err != nil {
			return basehdl.HandleResponse(c, nil, err)
		}
		return basehdl.HandleResponse(c, stats, nil)
	})
}
