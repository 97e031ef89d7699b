package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// AuthToken lưu trữ cặp token OAuth đã mã hóa của một tài khoản với một dịch vụ ngoài.
// Mỗi cặp (accountId, serviceName) chỉ có duy nhất một bản ghi — ghi mới sẽ thay thế
// bản ghi cũ qua upsert.
type AuthToken struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	AccountID string             `json:"accountId" bson:"accountId" index:"compound:account_service_unique"` // ID tài khoản sở hữu token
	Service   string             `json:"serviceName" bson:"serviceName" index:"compound:account_service_unique" validate:"service_name"`

	// Ciphertext AES-256-GCM, mã hóa base64. Nonce riêng cho từng trường, sinh ngẫu nhiên mỗi lần ghi.
	AccessTokenEnc  string `json:"-" bson:"accessTokenEnc"`
	AccessTokenIV   string `json:"-" bson:"accessTokenIv"`
	RefreshTokenEnc string `json:"-" bson:"refreshTokenEnc,omitempty"`
	RefreshTokenIV  string `json:"-" bson:"refreshTokenIv,omitempty"`

	ExpiresAt  int64 `json:"expiresAt" bson:"expiresAt" index:"single"` // Thời điểm access token hết hạn (UnixMilli)
	IsActive   bool  `json:"isActive" bson:"isActive"`                  // false = đã thu hồi hoặc refresh thất bại vĩnh viễn
	LastUsedAt int64 `json:"lastUsedAt" bson:"lastUsedAt,omitempty"`    // Thời điểm token được đọc gần nhất (best-effort)

	CreatedAt int64 `json:"createdAt" bson:"createdAt"`
	UpdatedAt int64 `json:"updatedAt" bson:"updatedAt"`
}

// TokenPair là cặp token dạng rõ (plaintext) lưu thông giữa service và caller.
// Không bao giờ được ghi xuống database hay log ở dạng này.
type TokenPair struct {
	AccessToken  string `json:"accessToken" validate:"required"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresAt    int64  `json:"expiresAt"`
}
