package seqdto

// ProjectNumberInput dữ liệu đầu vào khi xin cấp số dự án mới
type ProjectNumberInput struct {
	DepartmentName string `json:"departmentName" validate:"required,no_xss"`
}

// ProjectNumberOutput là số dự án vừa cấp
type ProjectNumberOutput struct {
	ProjectNumber string `json:"projectNumber"`
}

// CounterStatusOutput là trạng thái hiện tại của một chuỗi đếm (chỉ đọc)
type CounterStatusOutput struct {
	DepartmentCode string `json:"departmentCode"`
	CurrentValue   int64  `json:"currentValue"`
}
