package authdto

// TokenStoreInput dữ liệu đầu vào khi lưu cặp token sau khi hoàn tất OAuth flow
type TokenStoreInput struct {
	AccountID    string `json:"accountId" validate:"required"`
	Service      string `json:"serviceName" validate:"required,service_name"`
	AccessToken  string `json:"accessToken" validate:"required"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresAt    int64  `json:"expiresAt" validate:"required,gt=0"` // UnixMilli
}

// TokenQueryInput định danh token cần đọc hoặc thu hồi
type TokenQueryInput struct {
	AccountID string `json:"accountId" validate:"required"`
	Service   string `json:"serviceName" validate:"required,service_name"`
}

// AccessTokenOutput là access token còn hạn trả cho caller
type AccessTokenOutput struct {
	AccessToken string `json:"accessToken"`
}
