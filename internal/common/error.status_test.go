// Package common - Test phân loại lỗi và chuyển đổi lỗi MongoDB.
package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestError_Is(t *testing.T) {
	// Sentinel error phải match chính nó qua errors.Is
	wrapped := NewError(ErrCodeCredentialRefresh, "Phiên kết nối đã hết hạn, cần ủy quyền lại", StatusUnauthorized, "details khác nhau không ảnh hưởng")
	assert.True(t, errors.Is(wrapped, ErrAuthExpired), "lỗi cùng code và message phải match sentinel")

	assert.False(t, errors.Is(ErrAuthExpired, ErrRefreshFailed), "hai sentinel khác nhau không được match")
	assert.False(t, errors.Is(errors.New("lỗi thường"), ErrAuthExpired), "lỗi thường không match custom error")
}

func TestError_StatusCodes(t *testing.T) {
	cases := []struct {
		err        error
		statusCode int
	}{
		{ErrAuthExpired, StatusUnauthorized},
		{ErrRefreshFailed, StatusBadGateway},
		{ErrRefreshThrottled, StatusTooManyRequests},
		{ErrNotFound, StatusNotFound},
		{ErrDuplicate, StatusConflict},
		{ErrInvalidInput, StatusBadRequest},
	}

	for _, tc := range cases {
		var customErr *Error
		if assert.ErrorAs(t, tc.err, &customErr) {
			assert.Equal(t, tc.statusCode, customErr.StatusCode, "status code sai cho %v", tc.err)
		}
	}
}

func TestConvertMongoError(t *testing.T) {
	assert.Nil(t, ConvertMongoError(nil), "nil phải đi qua nguyên vẹn")

	// mongo.ErrNoDocuments là "không tìm thấy", không phải lỗi hệ thống
	assert.ErrorIs(t, ConvertMongoError(mongo.ErrNoDocuments), ErrNotFound)

	// Custom error đã phân loại rồi thì giữ nguyên
	assert.ErrorIs(t, ConvertMongoError(ErrNotFound), ErrNotFound)

	// Lỗi duplicate key phải thành ErrMongoDuplicate (HTTP 409)
	dupErr := mongo.WriteException{
		WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key error"}},
	}
	converted := ConvertMongoError(dupErr)
	var customErr *Error
	if assert.ErrorAs(t, converted, &customErr) {
		assert.Equal(t, StatusConflict, customErr.StatusCode)
	}
}
