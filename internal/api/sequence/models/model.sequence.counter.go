package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// SequenceCounter lưu giá trị đếm dự án theo từng cặp (phòng ban, năm).
// Giá trị chỉ tăng qua $inc nguyên tử — không bao giờ read-then-write.
type SequenceCounter struct {
	ID                 primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	DepartmentCode     string             `json:"departmentCode" bson:"departmentCode" index:"compound:department_year_unique"` // Mã phòng ban đã chuẩn hóa (viết hoa, tối đa 3 ký tự)
	Year               int                `json:"year" bson:"year" index:"compound:department_year_unique"`                     // Năm 2 chữ số của chuỗi đếm (25 = 2025)
	LastSequenceNumber int64              `json:"lastSequenceNumber" bson:"lastSequenceNumber"`                                 // Số thứ tự đã cấp gần nhất, bắt đầu từ 1

	CreatedAt int64 `json:"createdAt" bson:"createdAt"`
	UpdatedAt int64 `json:"updatedAt" bson:"updatedAt"`
}
