package seqsvc

import (
	"context"
	"time"

	"deal_commerce/internal/logger"
)

// ProjectNumberService cấp số dự án duy nhất theo (phòng ban, năm).
// Số có dạng {MÃ}-{SỐ}: "ENG-001", "ENG-002", ... "ENG-1000".
type ProjectNumberService struct {
	store CounterStore

	// now cho phép test cố định thời gian; mặc định time.Now
	now func() time.Time
}

// NewProjectNumberService tạo service cấp số dự án
func NewProjectNumberService(store CounterStore) *ProjectNumberService {
	return &ProjectNumberService{
		store: store,
		now:   time.Now,
	}
}

// currentYear trả về năm 2 chữ số dùng làm khóa chuỗi đếm (2025 -> 25)
func (s *ProjectNumberService) currentYear() int {
	return s.now().Year() % 100
}

// GetNextProjectNumber cấp số dự án kế tiếp cho phòng ban trong năm hiện tại.
// Tên phòng ban được chuẩn hóa thành mã trước khi cấp số, nên "Engineering"
// và "  engineering  " dùng chung một chuỗi đếm.
func (s *ProjectNumberService) GetNextProjectNumber(ctx context.Context, departmentName string) (string, error) {
	code, err := DeriveDepartmentCode(departmentName)
	if err != nil {
		return "", err
	}

	year := s.currentYear()

	value, err := s.store.NextValue(ctx, code, year)
	if err != nil {
		return "", err
	}

	number := FormatProjectNumber(code, value)

	logger.GetAuditLogger().
		WithField("departmentCode", code).
		WithField("year", year).
		WithField("projectNumber", number).
		Info("Đã cấp số dự án")

	return number, nil
}

// PeekCurrentValue trả về giá trị đếm hiện tại của phòng ban trong năm hiện tại,
// không tăng counter. Dùng cho màn hình giám sát.
func (s *ProjectNumberService) PeekCurrentValue(ctx context.Context, departmentName string) (string, int64, error) {
	code, err := DeriveDepartmentCode(departmentName)
	if err != nil {
		return "", 0, err
	}

	value, err := s.store.CurrentValue(ctx, code, s.currentYear())
	if err != nil {
		return "", 0, err
	}

	return code, value, nil
}
