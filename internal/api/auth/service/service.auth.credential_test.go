// Package authsvc - Test vòng đời token qua CredentialService với store in-memory.
package authsvc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"deal_commerce/internal/api/auth/models"
	"deal_commerce/internal/common"
	"deal_commerce/internal/utility"
)

// fakeTokenStore giả lập collection auth_tokens trong bộ nhớ
type fakeTokenStore struct {
	mu     sync.Mutex
	tokens map[string]models.AuthToken

	deactivateCalls int
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{tokens: make(map[string]models.AuthToken)}
}

func (f *fakeTokenStore) key(accountID, service string) string {
	return accountID + ":" + service
}

func (f *fakeTokenStore) UpsertToken(ctx context.Context, token models.AuthToken) (models.AuthToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token.IsActive = true
	token.UpdatedAt = utility.CurrentTimeInMilli()
	f.tokens[f.key(token.AccountID, token.Service)] = token
	return token, nil
}

func (f *fakeTokenStore) FindActive(ctx context.Context, accountID, service string) (models.AuthToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokens[f.key(accountID, service)]
	if !ok || !token.IsActive {
		return models.AuthToken{}, common.ErrNotFound
	}
	return token, nil
}

func (f *fakeTokenStore) TouchLastUsed(ctx context.Context, accountID, service string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token, ok := f.tokens[f.key(accountID, service)]; ok {
		token.LastUsedAt = utility.CurrentTimeInMilli()
		f.tokens[f.key(accountID, service)] = token
	}
}

func (f *fakeTokenStore) Deactivate(ctx context.Context, accountID, service string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivateCalls++
	token, ok := f.tokens[f.key(accountID, service)]
	if !ok {
		return common.ErrNotFound
	}
	token.IsActive = false
	f.tokens[f.key(accountID, service)] = token
	return nil
}

func (f *fakeTokenStore) DeactivateExpiredOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deactivated int64
	for k, token := range f.tokens {
		if token.IsActive && token.ExpiresAt < cutoff {
			token.IsActive = false
			token.UpdatedAt = utility.CurrentTimeInMilli()
			f.tokens[k] = token
			deactivated++
		}
	}
	return deactivated, nil
}

func (f *fakeTokenStore) DeleteInactiveOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for k, token := range f.tokens {
		if !token.IsActive && token.UpdatedAt < cutoff {
			delete(f.tokens, k)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeTokenStore) CountActive(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, token := range f.tokens {
		if token.IsActive {
			n++
		}
	}
	return n, nil
}

func (f *fakeTokenStore) CountAll(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.tokens)), nil
}

func (f *fakeTokenStore) CountRecentlyUsed(ctx context.Context, since int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, token := range f.tokens {
		if token.LastUsedAt >= since {
			n++
		}
	}
	return n, nil
}

func (f *fakeTokenStore) CountByService(ctx context.Context, service string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, token := range f.tokens {
		if token.IsActive && token.Service == service {
			n++
		}
	}
	return n, nil
}

func newTestCredentialService(t *testing.T, store TokenStore, refreshFns map[string]RefreshFunc) *CredentialService {
	t.Helper()
	cipher := newTestCipher(t)
	svc := NewCredentialService(store, cipher, refreshFns)
	t.Cleanup(svc.Close)
	return svc
}

func TestCredentialService_StoreAndGet(t *testing.T) {
	store := newFakeTokenStore()
	svc := newTestCredentialService(t, store, nil)
	ctx := context.Background()

	pair := models.TokenPair{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    utility.CurrentTimeInMilli() + 3600_000,
	}
	if err := svc.Store(ctx, "acc1", "crm", pair); err != nil {
		t.Fatalf("Store lỗi: %v", err)
	}

	// Bản ghi trong store phải là ciphertext, không phải plaintext
	stored, err := store.FindActive(ctx, "acc1", "crm")
	if err != nil {
		t.Fatalf("FindActive lỗi: %v", err)
	}
	if stored.AccessTokenEnc == "access-1" || stored.AccessTokenEnc == "" {
		t.Errorf("Access token trong store phải là ciphertext, nhận được %q", stored.AccessTokenEnc)
	}
	if stored.RefreshTokenEnc == "refresh-1" || stored.RefreshTokenEnc == "" {
		t.Errorf("Refresh token trong store phải là ciphertext, nhận được %q", stored.RefreshTokenEnc)
	}

	got, err := svc.GetValidAccessToken(ctx, "acc1", "crm")
	if err != nil {
		t.Fatalf("GetValidAccessToken lỗi: %v", err)
	}
	if got != "access-1" {
		t.Errorf("GetValidAccessToken trả về %q, muốn %q", got, "access-1")
	}
}

func TestCredentialService_GetUnknownToken(t *testing.T) {
	svc := newTestCredentialService(t, newFakeTokenStore(), nil)

	_, err := svc.GetValidAccessToken(context.Background(), "nobody", "crm")
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Token chưa từng lưu phải trả ErrNotFound, nhận được %v", err)
	}
}

func TestCredentialService_ValidatesInput(t *testing.T) {
	svc := newTestCredentialService(t, newFakeTokenStore(), nil)
	ctx := context.Background()

	if err := svc.Store(ctx, "", "crm", models.TokenPair{AccessToken: "x"}); err == nil {
		t.Error("Store với accountId rỗng phải trả lỗi")
	}
	if err := svc.Store(ctx, "acc", "crm", models.TokenPair{}); err == nil {
		t.Error("Store với accessToken rỗng phải trả lỗi")
	}
	if _, err := svc.GetValidAccessToken(ctx, "acc", ""); err == nil {
		t.Error("GetValidAccessToken với serviceName rỗng phải trả lỗi")
	}
}

func TestCredentialService_RefreshOnExpiry(t *testing.T) {
	store := newFakeTokenStore()
	cipher := newTestCipher(t)

	var refreshCalls int
	refreshFns := map[string]RefreshFunc{
		"crm": func(ctx context.Context, refreshToken string) (models.TokenPair, bool, error) {
			refreshCalls++
			if refreshToken != "old-refresh" {
				t.Errorf("Refresh function nhận refresh token %q, muốn %q", refreshToken, "old-refresh")
			}
			return models.TokenPair{
				AccessToken: "new",
				ExpiresAt:   utility.CurrentTimeInMilli() + 3600_000,
			}, false, nil
		},
	}
	svc := NewCredentialService(store, cipher, refreshFns)
	t.Cleanup(svc.Close)
	ctx := context.Background()

	// Token đã hết hạn từ 1 giây trước
	expiredAt := utility.CurrentTimeInMilli() - 1000
	if err := svc.Store(ctx, "acc1", "crm", models.TokenPair{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    expiredAt,
	}); err != nil {
		t.Fatalf("Store lỗi: %v", err)
	}

	got, err := svc.GetValidAccessToken(ctx, "acc1", "crm")
	if err != nil {
		t.Fatalf("GetValidAccessToken lỗi: %v", err)
	}
	if got != "new" {
		t.Errorf("GetValidAccessToken trả về %q, muốn token mới %q", got, "new")
	}
	if refreshCalls != 1 {
		t.Errorf("Refresh function bị gọi %d lần, muốn 1", refreshCalls)
	}

	// Bản ghi trong store phải mang expiresAt mới
	stored, err := store.FindActive(ctx, "acc1", "crm")
	if err != nil {
		t.Fatalf("FindActive sau refresh lỗi: %v", err)
	}
	if stored.ExpiresAt <= expiredAt {
		t.Errorf("expiresAt trong store không được cập nhật: %d", stored.ExpiresAt)
	}

	// Refresh token cũ phải được giữ lại khi provider không cấp cái mới
	keptRefresh, err := cipher.Decrypt(stored.RefreshTokenEnc, stored.RefreshTokenIV)
	if err != nil {
		t.Fatalf("Decrypt refresh token lỗi: %v", err)
	}
	if keptRefresh != "old-refresh" {
		t.Errorf("Refresh token sau refresh là %q, muốn giữ lại %q", keptRefresh, "old-refresh")
	}
}

func TestCredentialService_TerminalRefreshDeactivates(t *testing.T) {
	store := newFakeTokenStore()

	var refreshCalls int
	refreshFns := map[string]RefreshFunc{
		"crm": func(ctx context.Context, refreshToken string) (models.TokenPair, bool, error) {
			refreshCalls++
			return models.TokenPair{}, true, common.ErrAuthExpired
		},
	}
	svc := newTestCredentialService(t, store, refreshFns)
	ctx := context.Background()

	if err := svc.Store(ctx, "acc1", "crm", models.TokenPair{
		AccessToken:  "old",
		RefreshToken: "rt",
		ExpiresAt:    utility.CurrentTimeInMilli() - 1000,
	}); err != nil {
		t.Fatalf("Store lỗi: %v", err)
	}

	_, err := svc.GetValidAccessToken(ctx, "acc1", "crm")
	if !errors.Is(err, common.ErrAuthExpired) {
		t.Fatalf("Refresh bị từ chối vĩnh viễn phải trả ErrAuthExpired, nhận được %v", err)
	}

	// Token phải bị deactivate
	if _, err := store.FindActive(ctx, "acc1", "crm"); !errors.Is(err, common.ErrNotFound) {
		t.Error("Token phải ở trạng thái inactive sau lỗi refresh vĩnh viễn")
	}
	if store.deactivateCalls != 1 {
		t.Errorf("Deactivate bị gọi %d lần, muốn 1", store.deactivateCalls)
	}

	// Lần đọc tiếp theo: không refresh thêm, trả NotFound
	_, err = svc.GetValidAccessToken(ctx, "acc1", "crm")
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Đọc token đã thu hồi phải trả ErrNotFound, nhận được %v", err)
	}
	if refreshCalls != 1 {
		t.Errorf("Refresh function bị gọi %d lần, muốn 1 (không retry sau lỗi vĩnh viễn)", refreshCalls)
	}
}

func TestCredentialService_TransientRefreshKeepsToken(t *testing.T) {
	store := newFakeTokenStore()
	refreshFns := map[string]RefreshFunc{
		"crm": func(ctx context.Context, refreshToken string) (models.TokenPair, bool, error) {
			return models.TokenPair{}, false, common.ErrRefreshFailed
		},
	}
	svc := newTestCredentialService(t, store, refreshFns)
	ctx := context.Background()

	if err := svc.Store(ctx, "acc1", "crm", models.TokenPair{
		AccessToken:  "old",
		RefreshToken: "rt",
		ExpiresAt:    utility.CurrentTimeInMilli() - 1000,
	}); err != nil {
		t.Fatalf("Store lỗi: %v", err)
	}

	_, err := svc.GetValidAccessToken(ctx, "acc1", "crm")
	if !errors.Is(err, common.ErrRefreshFailed) {
		t.Fatalf("Refresh thất bại tạm thời phải trả ErrRefreshFailed, nhận được %v", err)
	}

	// Token vẫn active - lỗi có thể chỉ là timeout
	if _, err := store.FindActive(ctx, "acc1", "crm"); err != nil {
		t.Errorf("Token phải còn active sau lỗi tạm thời, FindActive trả %v", err)
	}
	if store.deactivateCalls != 0 {
		t.Errorf("Deactivate bị gọi %d lần sau lỗi tạm thời, muốn 0", store.deactivateCalls)
	}
}

func TestCredentialService_NoRefreshTokenMeansReauth(t *testing.T) {
	store := newFakeTokenStore()
	svc := newTestCredentialService(t, store, nil)
	ctx := context.Background()

	if err := svc.Store(ctx, "acc1", "crm", models.TokenPair{
		AccessToken: "old",
		ExpiresAt:   utility.CurrentTimeInMilli() - 1000,
	}); err != nil {
		t.Fatalf("Store lỗi: %v", err)
	}

	_, err := svc.GetValidAccessToken(ctx, "acc1", "crm")
	if !errors.Is(err, common.ErrAuthExpired) {
		t.Errorf("Token hết hạn không có refresh token phải trả ErrAuthExpired, nhận được %v", err)
	}
}

func TestCredentialService_DeactivateThenGet(t *testing.T) {
	store := newFakeTokenStore()
	svc := newTestCredentialService(t, store, nil)
	ctx := context.Background()

	if err := svc.Store(ctx, "acc1", "crm", models.TokenPair{
		AccessToken: "x",
		ExpiresAt:   utility.CurrentTimeInMilli() + 3600_000,
	}); err != nil {
		t.Fatalf("Store lỗi: %v", err)
	}

	if err := svc.Deactivate(ctx, "acc1", "crm"); err != nil {
		t.Fatalf("Deactivate lỗi: %v", err)
	}

	// Cache phải bị xóa cùng lúc - không được trả token từ cache
	if _, err := svc.GetValidAccessToken(ctx, "acc1", "crm"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Đọc token sau Deactivate phải trả ErrNotFound, nhận được %v", err)
	}
}

func TestCredentialService_Statistics(t *testing.T) {
	store := newFakeTokenStore()
	refreshFns := map[string]RefreshFunc{
		"crm":        func(ctx context.Context, rt string) (models.TokenPair, bool, error) { return models.TokenPair{}, false, nil },
		"accounting": func(ctx context.Context, rt string) (models.TokenPair, bool, error) { return models.TokenPair{}, false, nil },
	}
	svc := newTestCredentialService(t, store, refreshFns)
	ctx := context.Background()

	future := utility.CurrentTimeInMilli() + 3600_000
	svc.Store(ctx, "a1", "crm", models.TokenPair{AccessToken: "t1", ExpiresAt: future})
	svc.Store(ctx, "a2", "crm", models.TokenPair{AccessToken: "t2", ExpiresAt: future})
	svc.Store(ctx, "a1", "accounting", models.TokenPair{AccessToken: "t3", ExpiresAt: future})

	// Một token bị thu hồi: vẫn tính vào tổng nhưng không tính active
	if err := svc.Deactivate(ctx, "a2", "crm"); err != nil {
		t.Fatalf("Deactivate lỗi: %v", err)
	}
	// Một token vừa được dùng
	store.TouchLastUsed(ctx, "a1", "crm")

	stats, err := svc.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics lỗi: %v", err)
	}
	if stats.ActiveTokens != 2 {
		t.Errorf("ActiveTokens = %d, muốn 2", stats.ActiveTokens)
	}
	if stats.TotalTokens != 3 {
		t.Errorf("TotalTokens = %d, muốn 3 (kể cả token đã thu hồi)", stats.TotalTokens)
	}
	if stats.RecentActivity != 1 {
		t.Errorf("RecentActivity = %d, muốn 1", stats.RecentActivity)
	}
	if stats.ByService["crm"] != 1 {
		t.Errorf("ByService[crm] = %d, muốn 1", stats.ByService["crm"])
	}
	if stats.ByService["accounting"] != 1 {
		t.Errorf("ByService[accounting] = %d, muốn 1", stats.ByService["accounting"])
	}
	if stats.CacheSize != 2 {
		t.Errorf("CacheSize = %d, muốn 2 (entry của token thu hồi đã bị xóa)", stats.CacheSize)
	}
}

func TestCredentialService_RefreshStormThrottled(t *testing.T) {
	store := newFakeTokenStore()
	cipher := newTestCipher(t)

	// Provider trả về token đã hết hạn theo đồng hồ cục bộ (lệch giờ):
	// nếu mỗi lần đọc lại refresh thêm một lần thì thành refresh storm
	var refreshCalls int
	refreshFns := map[string]RefreshFunc{
		"crm": func(ctx context.Context, refreshToken string) (models.TokenPair, bool, error) {
			refreshCalls++
			return models.TokenPair{
				AccessToken:  "skewed",
				RefreshToken: "rt-new",
				ExpiresAt:    utility.CurrentTimeInMilli() - 1000,
			}, false, nil
		},
	}
	svc := NewCredentialService(store, cipher, refreshFns)
	t.Cleanup(svc.Close)
	ctx := context.Background()

	if err := svc.Store(ctx, "acc1", "crm", models.TokenPair{
		AccessToken:  "old",
		RefreshToken: "rt",
		ExpiresAt:    utility.CurrentTimeInMilli() - 1000,
	}); err != nil {
		t.Fatalf("Store lỗi: %v", err)
	}

	if _, err := svc.GetValidAccessToken(ctx, "acc1", "crm"); err != nil {
		t.Fatalf("GetValidAccessToken lần đầu lỗi: %v", err)
	}

	// Trong cửa sổ 5 giây sau khi refresh xong: không được refresh thêm
	_, err := svc.GetValidAccessToken(ctx, "acc1", "crm")
	if !errors.Is(err, common.ErrRefreshThrottled) {
		t.Errorf("Đọc lại ngay sau refresh ra token hết hạn phải trả ErrRefreshThrottled, nhận được %v", err)
	}
	if refreshCalls != 1 {
		t.Errorf("Refresh function bị gọi %d lần, muốn 1 (cửa sổ rate-limit phải chặn lần hai)", refreshCalls)
	}

	// Ủy quyền mới từ ngoài vào mới được xóa cửa sổ
	if err := svc.Store(ctx, "acc1", "crm", models.TokenPair{
		AccessToken:  "reauth",
		RefreshToken: "rt2",
		ExpiresAt:    utility.CurrentTimeInMilli() - 1000,
	}); err != nil {
		t.Fatalf("Store lại lỗi: %v", err)
	}
	svc.GetValidAccessToken(ctx, "acc1", "crm")
	if refreshCalls != 2 {
		t.Errorf("Sau lần ủy quyền mới, refresh function bị gọi %d lần, muốn 2", refreshCalls)
	}
}

func TestCredentialService_CorruptedCiphertextForcesReauth(t *testing.T) {
	store := newFakeTokenStore()
	svc := newTestCredentialService(t, store, nil)
	ctx := context.Background()

	// Bản ghi với ciphertext không đọc được (key mã hóa đã đổi)
	store.UpsertToken(ctx, models.AuthToken{
		AccountID:      "acc1",
		Service:        "crm",
		AccessTokenEnc: "aG9uZy1waGFpLWNpcGhlcnRleHQ=",
		AccessTokenIV:  "a2hvbmctcGhhaS1pdg==",
		ExpiresAt:      utility.CurrentTimeInMilli() + 3600_000,
	})

	// Caller phải nhận tín hiệu ủy quyền lại, không phải lỗi server
	_, err := svc.GetValidAccessToken(ctx, "acc1", "crm")
	if !errors.Is(err, common.ErrAuthExpired) {
		t.Errorf("Token không giải mã được phải trả ErrAuthExpired, nhận được %v", err)
	}
}

func TestCredentialService_CleanupExpiredTwoPhase(t *testing.T) {
	store := newFakeTokenStore()
	svc := newTestCredentialService(t, store, nil)
	ctx := context.Background()

	now := utility.CurrentTimeInMilli()
	twoHours := int64(2 * 3600_000)

	// Token còn active nhưng hết hạn từ lâu: phải bị thu hồi ở pha 1
	store.tokens[store.key("stale", "crm")] = models.AuthToken{
		AccountID: "stale", Service: "crm",
		IsActive: true, ExpiresAt: now - twoHours, UpdatedAt: now - twoHours,
	}
	// Token đã thu hồi và nằm im từ lâu: phải bị xóa hẳn ở pha 2
	store.tokens[store.key("dead", "crm")] = models.AuthToken{
		AccountID: "dead", Service: "crm",
		IsActive: false, ExpiresAt: now - twoHours, UpdatedAt: now - twoHours,
	}
	// Token còn hạn: không được đụng tới
	store.tokens[store.key("alive", "crm")] = models.AuthToken{
		AccountID: "alive", Service: "crm",
		IsActive: true, ExpiresAt: now + twoHours, UpdatedAt: now,
	}

	result, err := svc.CleanupExpired(ctx, time.Hour)
	if err != nil {
		t.Fatalf("CleanupExpired lỗi: %v", err)
	}
	if result.DeactivatedCount != 1 {
		t.Errorf("DeactivatedCount = %d, muốn 1", result.DeactivatedCount)
	}
	if result.DeletedCount != 1 {
		t.Errorf("DeletedCount = %d, muốn 1", result.DeletedCount)
	}

	// Token vừa bị thu hồi ở pha 1 chưa bị xóa ngay trong cùng lượt
	if _, ok := store.tokens[store.key("stale", "crm")]; !ok {
		t.Error("Token vừa thu hồi ở pha 1 phải còn trong store đến lượt dọn sau")
	}
	if _, err := store.FindActive(ctx, "alive", "crm"); err != nil {
		t.Errorf("Token còn hạn không được đụng tới, FindActive trả %v", err)
	}
}
