package seqsvc

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	basesvc "deal_commerce/internal/api/base/service"
	"deal_commerce/internal/api/sequence/models"
	"deal_commerce/internal/common"
)

// CounterStore là thao tác cấp số duy nhất mà SequenceService cần.
// Tách interface để test tiêm được store in-memory.
type CounterStore interface {
	// NextValue tăng và trả về giá trị đếm mới cho (departmentCode, year)
	// trong MỘT thao tác nguyên tử. Chưa có counter thì tạo với giá trị 1.
	NextValue(ctx context.Context, departmentCode string, year int) (int64, error)

	// CurrentValue trả về giá trị đếm hiện tại, 0 nếu chưa có counter
	CurrentValue(ctx context.Context, departmentCode string, year int) (int64, error)
}

// SequenceCounterService quản lý counter trong collection sequence_counters
type SequenceCounterService struct {
	*basesvc.BaseServiceMongoImpl[models.SequenceCounter]
}

// NewSequenceCounterService tạo mới SequenceCounterService với collection đã đăng ký
func NewSequenceCounterService(collection *mongo.Collection) *SequenceCounterService {
	return &SequenceCounterService{
		BaseServiceMongoImpl: basesvc.NewBaseServiceMongo[models.SequenceCounter](collection),
	}
}

// NextValue cấp số thứ tự kế tiếp cho (departmentCode, year) bằng một lệnh
// findOneAndUpdate duy nhất: $inc + upsert + ReturnDocument(After).
// Không có cửa sổ read-then-write nên N caller đồng thời nhận đúng N giá trị
// liên tiếp không trùng không hở, kể cả khi counter chưa tồn tại.
func (s *SequenceCounterService) NextValue(ctx context.Context, departmentCode string, year int) (int64, error) {
	filter := bson.M{
		"departmentCode": departmentCode,
		"year":           year,
	}

	update := &basesvc.UpdateData{
		Inc: map[string]interface{}{
			"lastSequenceNumber": int64(1),
		},
		SetOnInsert: map[string]interface{}{
			"departmentCode": departmentCode,
			"year":           year,
			"createdAt":      time.Now().UnixMilli(),
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	counter, err := s.FindOneAndUpdate(ctx, filter, update, opts)
	if err != nil {
		return 0, err
	}

	return counter.LastSequenceNumber, nil
}

// CurrentValue đọc giá trị đếm hiện tại mà không tăng. Chưa có counter trả về 0.
func (s *SequenceCounterService) CurrentValue(ctx context.Context, departmentCode string, year int) (int64, error) {
	filter := bson.M{
		"departmentCode": departmentCode,
		"year":           year,
	}

	counter, err := s.FindOne(ctx, filter, nil)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// Chưa có counter không phải lỗi với caller chỉ muốn xem
			return 0, nil
		}
		return 0, err
	}

	return counter.LastSequenceNumber, nil
}
