package authsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"deal_commerce/internal/api/auth/models"
	"deal_commerce/internal/common"
	"deal_commerce/internal/utility"
)

// OAuthClientConfig là bộ credential OAuth của một dịch vụ ngoài
type OAuthClientConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// oauthTokenResponse là body JSON chuẩn OAuth2 từ token endpoint
type oauthTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // giây
	TokenType    string `json:"token_type"`
}

// NewOAuthRefreshFunc tạo RefreshFunc gọi token endpoint của một provider
// theo grant refresh_token. Client HTTP có timeout riêng - coordinator không
// áp thêm timeout nào khác.
func NewOAuthRefreshFunc(cfg OAuthClientConfig) RefreshFunc {
	client := &http.Client{Timeout: 15 * time.Second}

	return func(ctx context.Context, refreshToken string) (models.TokenPair, bool, error) {
		form := url.Values{}
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", refreshToken)
		form.Set("client_id", cfg.ClientID)
		form.Set("client_secret", cfg.ClientSecret)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenURL, strings.NewReader(form.Encode()))
		if err != nil {
			return models.TokenPair{}, false, common.NewError(
				common.ErrCodeCredentialRefresh,
				"Không tạo được request tới OAuth provider",
				common.StatusInternalServerError,
				err,
			)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := client.Do(req)
		if err != nil {
			// Lỗi mạng / timeout: tạm thời, token lưu trữ vẫn còn nguyên
			return models.TokenPair{}, false, common.ErrRefreshFailed
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return models.TokenPair{}, false, common.ErrRefreshFailed
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			// rơi xuống parse bên dưới
		case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
			// Provider từ chối vĩnh viễn: refresh token đã bị thu hồi hoặc client sai
			return models.TokenPair{}, true, common.NewError(
				common.ErrCodeCredentialRefresh,
				fmt.Sprintf("OAuth provider từ chối refresh (HTTP %d)", resp.StatusCode),
				common.StatusUnauthorized,
				string(body),
			)
		default:
			// 5xx và các mã khác: coi là tạm thời
			return models.TokenPair{}, false, common.ErrRefreshFailed
		}

		var tokenResp oauthTokenResponse
		if err := json.Unmarshal(body, &tokenResp); err != nil {
			return models.TokenPair{}, false, common.ErrRefreshFailed
		}

		if tokenResp.AccessToken == "" {
			return models.TokenPair{}, false, common.ErrRefreshFailed
		}

		return models.TokenPair{
			AccessToken:  tokenResp.AccessToken,
			RefreshToken: tokenResp.RefreshToken,
			ExpiresAt:    utility.CurrentTimeInMilli() + tokenResp.ExpiresIn*1000,
		}, false, nil
	}
}
