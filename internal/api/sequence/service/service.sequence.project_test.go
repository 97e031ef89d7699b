// Package seqsvc - Test cấp số dự án với counter store in-memory.
package seqsvc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"deal_commerce/internal/common"
)

// fakeCounterStore giả lập collection sequence_counters: tăng nguyên tử trong mutex
type fakeCounterStore struct {
	mu       sync.Mutex
	values   map[string]int64
	lastYear int
}

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{values: make(map[string]int64)}
}

func (f *fakeCounterStore) key(code string, year int) string {
	return fmt.Sprintf("%s:%d", code, year)
}

func (f *fakeCounterStore) NextValue(ctx context.Context, code string, year int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastYear = year
	f.values[f.key(code, year)]++
	return f.values[f.key(code, year)], nil
}

func (f *fakeCounterStore) CurrentValue(ctx context.Context, code string, year int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[f.key(code, year)], nil
}

func newTestProjectNumberService(store CounterStore) *ProjectNumberService {
	svc := NewProjectNumberService(store)
	// Cố định thời gian để test không đổi hành vi lúc giao thừa
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestGetNextProjectNumber_Sequential(t *testing.T) {
	svc := newTestProjectNumberService(newFakeCounterStore())
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		got, err := svc.GetNextProjectNumber(ctx, "Engineering")
		if err != nil {
			t.Fatalf("GetNextProjectNumber lần %d lỗi: %v", i, err)
		}
		want := fmt.Sprintf("ENG-%03d", i)
		if got != want {
			t.Errorf("Lần %d nhận %q, muốn %q", i, got, want)
		}
	}
}

func TestGetNextProjectNumber_SharedSequencePerDepartment(t *testing.T) {
	svc := newTestProjectNumberService(newFakeCounterStore())
	ctx := context.Background()

	// Cùng phòng ban viết khác nhau phải dùng chung chuỗi đếm
	first, _ := svc.GetNextProjectNumber(ctx, "Engineering")
	second, _ := svc.GetNextProjectNumber(ctx, "  engineering  ")
	if first != "ENG-001" || second != "ENG-002" {
		t.Errorf("Cùng phòng ban phải chung chuỗi đếm: nhận %q rồi %q", first, second)
	}

	// Phòng ban khác có chuỗi đếm riêng
	other, _ := svc.GetNextProjectNumber(ctx, "Sales")
	if other != "SAL-001" {
		t.Errorf("Phòng ban khác phải bắt đầu từ 1: nhận %q", other)
	}
}

func TestGetNextProjectNumber_TwoDigitYearKey(t *testing.T) {
	store := newFakeCounterStore()
	svc := newTestProjectNumberService(store)

	if _, err := svc.GetNextProjectNumber(context.Background(), "Engineering"); err != nil {
		t.Fatalf("GetNextProjectNumber lỗi: %v", err)
	}

	// Khóa chuỗi đếm dùng năm 2 chữ số: 2025 -> 25
	if store.lastYear != 25 {
		t.Errorf("Counter nhận khóa năm %d, muốn 25", store.lastYear)
	}
}

func TestGetNextProjectNumber_EmptyName(t *testing.T) {
	svc := newTestProjectNumberService(newFakeCounterStore())

	if _, err := svc.GetNextProjectNumber(context.Background(), "  "); !errors.Is(err, common.ErrRequiredField) {
		t.Errorf("Tên phòng ban rỗng phải trả ErrRequiredField, nhận được %v", err)
	}
}

func TestGetNextProjectNumber_ConcurrentUnique(t *testing.T) {
	svc := newTestProjectNumberService(newFakeCounterStore())
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	results := make([]string, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			number, err := svc.GetNextProjectNumber(ctx, "Engineering")
			if err != nil {
				t.Errorf("Caller %d lỗi: %v", i, err)
				return
			}
			results[i] = number
		}(i)
	}
	wg.Wait()

	// Tập số được cấp phải đúng là {1..n}, không trùng không hở
	sort.Strings(results)
	for i := 0; i < n; i++ {
		want := fmt.Sprintf("ENG-%03d", i+1)
		if results[i] != want {
			t.Errorf("Tập số cấp ra sai tại vị trí %d: nhận %q, muốn %q (toàn bộ: %v)", i, results[i], want, results)
			break
		}
	}

	// Caller tiếp theo nhận số n+1
	next, err := svc.GetNextProjectNumber(ctx, "Engineering")
	if err != nil {
		t.Fatalf("GetNextProjectNumber sau đợt đồng thời lỗi: %v", err)
	}
	if want := fmt.Sprintf("ENG-%03d", n+1); next != want {
		t.Errorf("Số kế tiếp là %q, muốn %q", next, want)
	}
}

func TestPeekCurrentValue(t *testing.T) {
	svc := newTestProjectNumberService(newFakeCounterStore())
	ctx := context.Background()

	// Chưa cấp số nào: giá trị 0
	code, value, err := svc.PeekCurrentValue(ctx, "Engineering")
	if err != nil {
		t.Fatalf("PeekCurrentValue lỗi: %v", err)
	}
	if code != "ENG" || value != 0 {
		t.Errorf("PeekCurrentValue = (%q, %d), muốn (ENG, 0)", code, value)
	}

	svc.GetNextProjectNumber(ctx, "Engineering")
	svc.GetNextProjectNumber(ctx, "Engineering")

	// Peek không được tăng counter
	_, value, _ = svc.PeekCurrentValue(ctx, "Engineering")
	if value != 2 {
		t.Errorf("Sau 2 lần cấp, PeekCurrentValue = %d, muốn 2", value)
	}
	_, value, _ = svc.PeekCurrentValue(ctx, "Engineering")
	if value != 2 {
		t.Errorf("Peek lần nữa = %d, muốn vẫn 2 (peek không tăng counter)", value)
	}
}
