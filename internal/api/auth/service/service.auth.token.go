package authsvc

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"deal_commerce/internal/api/auth/models"
	basesvc "deal_commerce/internal/api/base/service"
	"deal_commerce/internal/common"
	"deal_commerce/internal/logger"
	"deal_commerce/internal/utility"
)

// TokenStore là tập thao tác lưu trữ mà CredentialService cần.
// Tách interface để test có thể tiêm store in-memory thay cho MongoDB.
type TokenStore interface {
	UpsertToken(ctx context.Context, token models.AuthToken) (models.AuthToken, error)
	FindActive(ctx context.Context, accountID, service string) (models.AuthToken, error)
	TouchLastUsed(ctx context.Context, accountID, service string)
	Deactivate(ctx context.Context, accountID, service string) error
	DeactivateExpiredOlderThan(ctx context.Context, cutoff int64) (int64, error)
	DeleteInactiveOlderThan(ctx context.Context, cutoff int64) (int64, error)
	CountActive(ctx context.Context) (int64, error)
	CountAll(ctx context.Context) (int64, error)
	CountRecentlyUsed(ctx context.Context, since int64) (int64, error)
	CountByService(ctx context.Context, service string) (int64, error)
}

// AuthTokenService quản lý bản ghi token trong collection auth_tokens.
// Mọi token đi qua đây đều đã được mã hóa — service này không biết gì về plaintext.
type AuthTokenService struct {
	*basesvc.BaseServiceMongoImpl[models.AuthToken]
}

// NewAuthTokenService tạo mới AuthTokenService với collection đã đăng ký
func NewAuthTokenService(collection *mongo.Collection) *AuthTokenService {
	return &AuthTokenService{
		BaseServiceMongoImpl: basesvc.NewBaseServiceMongo[models.AuthToken](collection),
	}
}

// UpsertToken ghi token theo khóa (accountId, serviceName): thay thế bản ghi cũ nếu có,
// tạo mới nếu chưa. Index unique trên cặp khóa chặn race tạo trùng giữa hai process.
func (s *AuthTokenService) UpsertToken(ctx context.Context, token models.AuthToken) (models.AuthToken, error) {
	filter := bson.M{
		"accountId":   token.AccountID,
		"serviceName": token.Service,
	}

	update := &basesvc.UpdateData{
		Set: map[string]interface{}{
			"accessTokenEnc":  token.AccessTokenEnc,
			"accessTokenIv":   token.AccessTokenIV,
			"refreshTokenEnc": token.RefreshTokenEnc,
			"refreshTokenIv":  token.RefreshTokenIV,
			"expiresAt":       token.ExpiresAt,
			"isActive":        true,
		},
		SetOnInsert: map[string]interface{}{
			"accountId":   token.AccountID,
			"serviceName": token.Service,
		},
	}

	return s.Upsert(ctx, filter, update)
}

// FindActive tìm token đang hoạt động của một tài khoản với một dịch vụ.
// Token đã deactivate coi như không tồn tại - trả về common.ErrNotFound.
func (s *AuthTokenService) FindActive(ctx context.Context, accountID, service string) (models.AuthToken, error) {
	filter := bson.M{
		"accountId":   accountID,
		"serviceName": service,
		"isActive":    true,
	}

	return s.FindOne(ctx, filter, nil)
}

// TouchLastUsed cập nhật thời điểm đọc gần nhất. Best-effort: lỗi chỉ ghi log,
// không bao giờ làm hỏng luồng đọc token của caller.
func (s *AuthTokenService) TouchLastUsed(ctx context.Context, accountID, service string) {
	filter := bson.M{
		"accountId":   accountID,
		"serviceName": service,
	}

	update := &basesvc.UpdateData{
		Set: map[string]interface{}{
			"lastUsedAt": utility.CurrentTimeInMilli(),
		},
	}

	if _, err := s.Collection().UpdateOne(ctx, filter, update); err != nil {
		logger.GetAppLogger().WithError(err).
			WithField("accountId", accountID).
			WithField("serviceName", service).
			Warn("Không cập nhật được lastUsedAt")
	}
}

// Deactivate đánh dấu token không còn hoạt động. Bản ghi vẫn giữ lại
// để phục vụ audit và để worker dọn dẹp xóa sau.
func (s *AuthTokenService) Deactivate(ctx context.Context, accountID, service string) error {
	filter := bson.M{
		"accountId":   accountID,
		"serviceName": service,
	}

	update := &basesvc.UpdateData{
		Set: map[string]interface{}{
			"isActive": false,
		},
	}

	_, err := s.UpdateOne(ctx, filter, update, nil)
	return err
}

// DeactivateExpiredOlderThan thu hồi các token còn active nhưng đã hết hạn
// từ trước thời điểm cutoff (UnixMilli). Trả về số bản ghi bị thu hồi.
func (s *AuthTokenService) DeactivateExpiredOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	filter := bson.M{
		"isActive":  true,
		"expiresAt": bson.M{"$lt": cutoff},
	}

	update := &basesvc.UpdateData{
		Set: map[string]interface{}{
			"isActive":  false,
			"updatedAt": utility.CurrentTimeInMilli(),
		},
	}

	result, err := s.Collection().UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, common.ConvertMongoError(err)
	}

	return result.ModifiedCount, nil
}

// DeleteInactiveOlderThan xóa các token đã deactivate và không được đụng tới
// từ trước thời điểm cutoff (UnixMilli). Trả về số bản ghi đã xóa.
func (s *AuthTokenService) DeleteInactiveOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	filter := bson.M{
		"isActive":  false,
		"updatedAt": bson.M{"$lt": cutoff},
	}

	return s.DeleteMany(ctx, filter)
}

// CountActive đếm số token đang hoạt động
func (s *AuthTokenService) CountActive(ctx context.Context) (int64, error) {
	return s.CountDocuments(ctx, bson.M{"isActive": true})
}

// CountAll đếm toàn bộ bản ghi token, kể cả đã thu hồi
func (s *AuthTokenService) CountAll(ctx context.Context) (int64, error) {
	return s.CountDocuments(ctx, bson.M{})
}

// CountRecentlyUsed đếm số token được đọc từ thời điểm since (UnixMilli) trở lại
func (s *AuthTokenService) CountRecentlyUsed(ctx context.Context, since int64) (int64, error) {
	return s.CountDocuments(ctx, bson.M{"lastUsedAt": bson.M{"$gte": since}})
}

// CountByService đếm số token đang hoạt động của một dịch vụ
func (s *AuthTokenService) CountByService(ctx context.Context, service string) (int64, error) {
	return s.CountDocuments(ctx, bson.M{"serviceName": service, "isActive": true})
}
