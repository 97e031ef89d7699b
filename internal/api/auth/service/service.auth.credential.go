package authsvc

import (
	"context"
	"fmt"
	"time"

	"deal_commerce/internal/api/auth/models"
	"deal_commerce/internal/common"
	"deal_commerce/internal/logger"
	"deal_commerce/internal/utility"
)

// TokenCacheTTL là thời gian sống của một entry trong cache token.
// Cache chỉ để giảm round-trip tới MongoDB, không phải cơ chế đảm bảo đúng đắn:
// hạn token luôn được kiểm tra lại trên expiresAt của chính dữ liệu cache.
const TokenCacheTTL = 5 * time.Minute

// CredentialService là mặt tiền của toàn bộ vòng đời token:
// lưu (mã hóa) -> đọc (giải mã, kiểm tra hạn) -> refresh (single-flight) -> thu hồi -> dọn dẹp.
// Plaintext token chỉ tồn tại bên trong service này và trong cache in-process.
type CredentialService struct {
	store       TokenStore
	cipher      *TokenCipher
	cache       *utility.Cache
	coordinator *RefreshCoordinator

	// refreshFns ánh xạ serviceName -> hàm gọi OAuth provider tương ứng.
	// Được tiêm từ ngoài vào, service này không tự biết gọi provider nào.
	refreshFns map[string]RefreshFunc
}

// NewCredentialService tạo CredentialService với các thành phần đã khởi tạo sẵn
func NewCredentialService(store TokenStore, cipher *TokenCipher, refreshFns map[string]RefreshFunc) *CredentialService {
	if refreshFns == nil {
		refreshFns = make(map[string]RefreshFunc)
	}
	return &CredentialService{
		store:       store,
		cipher:      cipher,
		cache:       utility.NewCache(TokenCacheTTL, time.Minute),
		coordinator: NewRefreshCoordinator(DefaultRefreshWindow),
		refreshFns:  refreshFns,
	}
}

// cacheKey ghép khóa định danh token. Cùng format với khóa single-flight
// của coordinator để hai lớp nhìn cùng một "token".
func cacheKey(accountID, service string) string {
	return fmt.Sprintf("%s:%s", accountID, service)
}

// Store mã hóa và ghi cặp token cho (accountId, serviceName), ghi đè bản ghi cũ nếu có.
// Chỉ dành cho luồng ủy quyền từ ngoài vào (OAuth exchange mới): lần ủy quyền mới
// xóa luôn cửa sổ rate-limit refresh cũ của khóa này. Luồng refresh nội bộ
// dùng persist để giữ nguyên cửa sổ.
func (s *CredentialService) Store(ctx context.Context, accountID, service string, pair models.TokenPair) error {
	if err := s.persist(ctx, accountID, service, pair); err != nil {
		return err
	}
	s.coordinator.Forget(cacheKey(accountID, service))
	return nil
}

// persist mã hóa và ghi cặp token, write-through cache. Không đụng tới coordinator:
// kết quả refresh vừa settle phải còn nguyên trong cửa sổ 5 giây để chặn
// refresh storm khi provider trả về token đã hết hạn theo đồng hồ cục bộ.
func (s *CredentialService) persist(ctx context.Context, accountID, service string, pair models.TokenPair) error {
	if accountID == "" || service == "" || pair.AccessToken == "" {
		return common.ErrRequiredField
	}

	accessEnc, accessIV, err := s.cipher.Encrypt(pair.AccessToken)
	if err != nil {
		return err
	}

	token := models.AuthToken{
		AccountID:      accountID,
		Service:        service,
		AccessTokenEnc: accessEnc,
		AccessTokenIV:  accessIV,
		ExpiresAt:      pair.ExpiresAt,
	}

	if pair.RefreshToken != "" {
		refreshEnc, refreshIV, err := s.cipher.Encrypt(pair.RefreshToken)
		if err != nil {
			return err
		}
		token.RefreshTokenEnc = refreshEnc
		token.RefreshTokenIV = refreshIV
	}

	if _, err := s.store.UpsertToken(ctx, token); err != nil {
		return err
	}

	s.cache.Set(cacheKey(accountID, service), pair)

	logger.GetAuditLogger().
		WithField("accountId", accountID).
		WithField("serviceName", service).
		Info("Đã lưu token mới")

	return nil
}

// GetValidAccessToken trả về access token còn hạn cho (accountId, serviceName).
// Token hết hạn sẽ được refresh qua coordinator (single-flight theo khóa);
// refresh thành công thì ghi lại store + cache rồi trả về token mới.
//
// Lỗi trả về theo phân loại:
//   - common.ErrNotFound: chưa từng lưu token hoặc token đã bị thu hồi
//   - common.ErrAuthExpired: provider từ chối refresh vĩnh viễn, hoặc dữ liệu lưu
//     không giải mã được với key hiện tại - cả hai đều buộc ủy quyền lại
//   - common.ErrRefreshFailed: refresh thất bại tạm thời, token còn nguyên, retry được
//   - common.ErrRefreshThrottled: đang trong cửa sổ rate-limit, back off rồi retry
func (s *CredentialService) GetValidAccessToken(ctx context.Context, accountID, service string) (string, error) {
	if accountID == "" || service == "" {
		return "", common.ErrRequiredField
	}

	pair, err := s.loadPair(ctx, accountID, service)
	if err != nil {
		return "", err
	}

	now := utility.CurrentTimeInMilli()
	if now < pair.ExpiresAt {
		// Còn hạn: bump lastUsedAt ở nền, không chặn caller
		utility.GoProtect(func() {
			bumpCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.store.TouchLastUsed(bumpCtx, accountID, service)
		})
		return pair.AccessToken, nil
	}

	return s.refreshAndStore(ctx, accountID, service, pair)
}

// loadPair đọc cặp token từ cache, fallback xuống store + giải mã
func (s *CredentialService) loadPair(ctx context.Context, accountID, service string) (models.TokenPair, error) {
	key := cacheKey(accountID, service)

	if cached, ok := s.cache.Get(key); ok {
		if pair, ok := cached.(models.TokenPair); ok {
			return pair, nil
		}
	}

	token, err := s.store.FindActive(ctx, accountID, service)
	if err != nil {
		return models.TokenPair{}, err
	}

	accessToken, err := s.cipher.Decrypt(token.AccessTokenEnc, token.AccessTokenIV)
	if err != nil {
		// Ciphertext không đọc được coi như không có token: caller phải
		// ủy quyền lại chứ không nhận lỗi server
		logger.GetErrorLogger().
			WithField("accountId", accountID).
			WithField("serviceName", service).
			Error("Token trong database không giải mã được - key mã hóa có thể đã đổi")
		return models.TokenPair{}, common.ErrAuthExpired
	}

	pair := models.TokenPair{
		AccessToken: accessToken,
		ExpiresAt:   token.ExpiresAt,
	}

	if token.RefreshTokenEnc != "" {
		refreshToken, err := s.cipher.Decrypt(token.RefreshTokenEnc, token.RefreshTokenIV)
		if err != nil {
			logger.GetErrorLogger().
				WithField("accountId", accountID).
				WithField("serviceName", service).
				Error("Refresh token trong database không giải mã được - key mã hóa có thể đã đổi")
			return models.TokenPair{}, common.ErrAuthExpired
		}
		pair.RefreshToken = refreshToken
	}

	s.cache.Set(key, pair)
	return pair, nil
}

// refreshAndStore chạy refresh qua coordinator và xử lý kết quả theo phân loại lỗi
func (s *CredentialService) refreshAndStore(ctx context.Context, accountID, service string, pair models.TokenPair) (string, error) {
	if pair.RefreshToken == "" {
		// Không có refresh token thì hết hạn là hết đường - phải ủy quyền lại
		return "", common.ErrAuthExpired
	}

	fn, ok := s.refreshFns[service]
	if !ok {
		return "", common.NewError(
			common.ErrCodeCredentialRefresh,
			fmt.Sprintf("Không có refresh function cho dịch vụ %q", service),
			common.StatusInternalServerError,
			nil,
		)
	}

	key := cacheKey(accountID, service)
	newPair, terminal, err := s.coordinator.Do(ctx, key, pair.RefreshToken, fn)
	if err != nil {
		if terminal {
			// Provider trả 400/401: refresh token đã chết, thu hồi bản ghi
			s.cache.Delete(key)
			if derr := s.store.Deactivate(ctx, accountID, service); derr != nil {
				logger.GetErrorLogger().WithError(derr).
					WithField("accountId", accountID).
					WithField("serviceName", service).
					Error("Không deactivate được token sau lỗi refresh vĩnh viễn")
			}
			logger.GetAuditLogger().
				WithField("accountId", accountID).
				WithField("serviceName", service).
				Warn("Token bị thu hồi do provider từ chối refresh")
			return "", common.ErrAuthExpired
		}
		return "", err
	}

	// Provider có thể không cấp refresh token mới - giữ lại cái cũ
	if newPair.RefreshToken == "" {
		newPair.RefreshToken = pair.RefreshToken
	}

	if err := s.persist(ctx, accountID, service, newPair); err != nil {
		return "", err
	}

	return newPair.AccessToken, nil
}

// Deactivate thu hồi token theo yêu cầu của caller (ví dụ khi user ngắt kết nối dịch vụ)
func (s *CredentialService) Deactivate(ctx context.Context, accountID, service string) error {
	if accountID == "" || service == "" {
		return common.ErrRequiredField
	}

	key := cacheKey(accountID, service)
	s.cache.Delete(key)
	s.coordinator.Forget(key)

	if err := s.store.Deactivate(ctx, accountID, service); err != nil {
		return err
	}

	logger.GetAuditLogger().
		WithField("accountId", accountID).
		WithField("serviceName", service).
		Info("Token đã bị thu hồi theo yêu cầu")

	return nil
}

// DefaultCleanupRetention là khoảng giữ lại mặc định trước khi một token
// hết hạn bị thu hồi hoặc một token đã thu hồi bị xóa hẳn.
const DefaultCleanupRetention = 30 * 24 * time.Hour

// CleanupResult là kết quả một lượt dọn dẹp hai pha
type CleanupResult struct {
	DeactivatedCount int64 `json:"deactivatedCount"` // Token còn active nhưng hết hạn quá lâu, bị thu hồi
	DeletedCount     int64 `json:"deletedCount"`     // Token đã thu hồi và nằm yên quá lâu, bị xóa hẳn
}

// CleanupExpired dọn kho token theo hai pha: thu hồi các token còn active
// nhưng đã hết hạn từ trước cutoff, rồi xóa hẳn các token đã thu hồi và
// không còn được đụng tới từ trước cutoff. Worker dọn dẹp gọi định kỳ.
func (s *CredentialService) CleanupExpired(ctx context.Context, olderThan time.Duration) (CleanupResult, error) {
	var result CleanupResult
	cutoff := time.Now().Add(-olderThan).UnixMilli()

	deactivated, err := s.store.DeactivateExpiredOlderThan(ctx, cutoff)
	if err != nil {
		return result, err
	}
	result.DeactivatedCount = deactivated

	deleted, err := s.store.DeleteInactiveOlderThan(ctx, cutoff)
	if err != nil {
		return result, err
	}
	result.DeletedCount = deleted

	if deactivated > 0 || deleted > 0 {
		logger.GetAuditLogger().
			WithField("deactivatedCount", deactivated).
			WithField("deletedCount", deleted).
			Info("Đã dọn dẹp kho token")
	}

	return result, nil
}

// RecentActivityWindow là khoảng thời gian tính một token là "hoạt động gần đây"
// trong số liệu thống kê.
const RecentActivityWindow = 24 * time.Hour

// CredentialStatistics tổng hợp số liệu token phục vụ giám sát
type CredentialStatistics struct {
	ActiveTokens   int64            `json:"activeTokens"`   // Số token đang hoạt động
	TotalTokens    int64            `json:"totalTokens"`    // Tổng số bản ghi, kể cả đã thu hồi
	RecentActivity int64            `json:"recentActivity"` // Số token được dùng trong 24 giờ qua
	ByService      map[string]int64 `json:"byService"`
	CacheSize      int              `json:"cacheSize"`
}

// Statistics trả về số liệu hiện tại của kho token
func (s *CredentialService) Statistics(ctx context.Context) (CredentialStatistics, error) {
	stats := CredentialStatistics{
		ByService: make(map[string]int64),
		CacheSize: s.cache.Len(),
	}

	active, err := s.store.CountActive(ctx)
	if err != nil {
		return stats, err
	}
	stats.ActiveTokens = active

	total, err := s.store.CountAll(ctx)
	if err != nil {
		return stats, err
	}
	stats.TotalTokens = total

	since := time.Now().Add(-RecentActivityWindow).UnixMilli()
	recent, err := s.store.CountRecentlyUsed(ctx, since)
	if err != nil {
		return stats, err
	}
	stats.RecentActivity = recent

	for service := range s.refreshFns {
		count, err := s.store.CountByService(ctx, service)
		if err != nil {
			return stats, err
		}
		stats.ByService[service] = count
	}

	return stats, nil
}

// Close dừng goroutine dọn cache. Gọi khi shutdown server.
func (s *CredentialService) Close() {
	s.cache.Stop()
}
