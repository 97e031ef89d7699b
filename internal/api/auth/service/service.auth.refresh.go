package authsvc

import (
	"context"
	"sync"
	"time"

	"deal_commerce/internal/api/auth/models"
	"deal_commerce/internal/common"
	"deal_commerce/internal/logger"
	"deal_commerce/internal/utility"
)

// RefreshFunc gọi OAuth provider để đổi refresh token lấy cặp token mới.
// terminal=true nghĩa là provider từ chối vĩnh viễn (400/401) - refresh token
// đã bị thu hồi, retry vô ích.
type RefreshFunc func(ctx context.Context, refreshToken string) (pair models.TokenPair, terminal bool, err error)

// refreshResult là kết quả của một lượt refresh, chia sẻ cho mọi caller cùng chờ
type refreshResult struct {
	pair     models.TokenPair
	terminal bool
	err      error
}

// refreshCall đại diện cho một lượt refresh đang chạy hoặc vừa hoàn thành
type refreshCall struct {
	done       chan struct{} // đóng khi refresh hoàn thành
	result     refreshResult
	finishedAt time.Time // thời điểm hoàn thành, dùng cho cửa sổ rate-limit
}

// RefreshCoordinator đảm bảo mỗi khóa (accountId, serviceName) chỉ có MỘT
// lượt refresh chạy tại một thời điểm trong process. N caller cùng phát hiện
// token hết hạn thì chỉ sinh đúng 1 lần gọi provider; các caller còn lại chờ
// và nhận chung kết quả. Sau khi hoàn thành, khóa đó bị chặn refresh thêm
// trong một cửa sổ rate-limit để tránh bão refresh do clock skew hoặc retry dồn dập.
type RefreshCoordinator struct {
	mu    sync.Mutex
	calls map[string]*refreshCall

	// Độ dài cửa sổ rate-limit tính từ lúc lượt refresh trước hoàn thành
	window time.Duration
}

// DefaultRefreshWindow là cửa sổ rate-limit mặc định giữa hai lượt refresh cùng khóa
const DefaultRefreshWindow = 5 * time.Second

// NewRefreshCoordinator tạo coordinator với cửa sổ rate-limit cho trước.
// window <= 0 dùng DefaultRefreshWindow.
func NewRefreshCoordinator(window time.Duration) *RefreshCoordinator {
	if window <= 0 {
		window = DefaultRefreshWindow
	}
	return &RefreshCoordinator{
		calls:  make(map[string]*refreshCall),
		window: window,
	}
}

// Do thực hiện refresh cho khóa key, gom mọi caller đồng thời về một lượt gọi duy nhất.
//
// Ba trường hợp:
//  1. Chưa có lượt nào đang chạy và đã qua cửa sổ rate-limit: chạy fn, broadcast kết quả.
//  2. Đang có lượt chạy: chờ lượt đó xong và nhận chung kết quả (kể cả lỗi).
//  3. Lượt trước vừa xong trong cửa sổ rate-limit: nếu kết quả đó thành công và
//     token chưa hết hạn thì trả lại luôn; ngược lại trả ErrRefreshThrottled,
//     KHÔNG gọi provider lần nữa.
func (rc *RefreshCoordinator) Do(ctx context.Context, key string, refreshToken string, fn RefreshFunc) (models.TokenPair, bool, error) {
	rc.mu.Lock()

	if call, ok := rc.calls[key]; ok {
		select {
		case <-call.done:
			// Lượt trước đã xong. Còn trong cửa sổ rate-limit thì không mở lượt mới.
			if time.Since(call.finishedAt) < rc.window {
				rc.mu.Unlock()
				return rc.replayWindowed(call)
			}
			// Hết cửa sổ: rơi xuống mở lượt mới
		default:
			// Lượt đang chạy: chờ chung kết quả
			rc.mu.Unlock()
			select {
			case <-call.done:
				return call.result.pair, call.result.terminal, call.result.err
			case <-ctx.Done():
				return models.TokenPair{}, false, ctx.Err()
			}
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	rc.calls[key] = call
	rc.mu.Unlock()

	pair, terminal, err := fn(ctx, refreshToken)

	rc.mu.Lock()
	call.result = refreshResult{pair: pair, terminal: terminal, err: err}
	call.finishedAt = time.Now()
	close(call.done)
	rc.mu.Unlock()

	if err != nil {
		logger.GetAppLogger().WithError(err).
			WithField("key", key).
			WithField("terminal", terminal).
			Warn("Refresh token thất bại")
	}

	return pair, terminal, err
}

// replayWindowed xử lý caller đến TRONG cửa sổ rate-limit sau khi lượt trước hoàn thành.
// Chỉ dùng lại được kết quả thành công và còn hạn; mọi trường hợp khác là throttled.
func (rc *RefreshCoordinator) replayWindowed(call *refreshCall) (models.TokenPair, bool, error) {
	if call.result.err == nil && call.result.pair.ExpiresAt > utility.CurrentTimeInMilli() {
		return call.result.pair, false, nil
	}
	return models.TokenPair{}, false, common.ErrRefreshThrottled
}

// Forget xóa trạng thái của một khóa, bỏ qua cửa sổ rate-limit còn lại.
// Dùng khi token của khóa đó vừa bị ghi đè bởi một lần ủy quyền mới.
func (rc *RefreshCoordinator) Forget(key string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if call, ok := rc.calls[key]; ok {
		select {
		case <-call.done:
			delete(rc.calls, key)
		default:
			// Lượt đang chạy thì giữ nguyên, caller đang chờ trên nó
		}
	}
}
