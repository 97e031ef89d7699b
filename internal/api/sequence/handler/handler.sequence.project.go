// Package seqhdl - Handler cấp số dự án.
package seqhdl

import (
	"github.com/gofiber/fiber/v3"

	basehdl "deal_commerce/internal/api/base/handler"
	seqdto "deal_commerce/internal/api/sequence/dto"
	seqsvc "deal_commerce/internal/api/sequence/service"
)

// ProjectNumberHandler xử lý API cấp số dự án theo phòng ban
type ProjectNumberHandler struct {
	ProjectNumberService *seqsvc.ProjectNumberService
}

// NewProjectNumberHandler tạo ProjectNumberHandler mới
func NewProjectNumberHandler(svc *seqsvc.ProjectNumberService) *ProjectNumberHandler {
	return &ProjectNumberHandler{ProjectNumberService: svc}
}

// HandleNextProjectNumber xử lý POST /sequences/project-number — cấp số dự án
// kế tiếp cho phòng ban trong năm hiện tại. Mỗi lần gọi thành công là một số mới.
func (h *ProjectNumberHandler) HandleNextProjectNumber(c fiber.Ctx) error {
	return basehdl.SafeHandler(c, func() error {
		var input seqdto.ProjectNumberInput
		if err := basehdl.ParseAndValidate(c, &input); err != nil {
			return basehdl.HandleResponse(c, nil, err)
		}

		number, err := h.ProjectNumberService.GetNextProjectNumber(c.Context(), input.DepartmentName)
		if err != nil {
			return basehdl.HandleResponse(c, nil, err)
		}

		return basehdl.HandleResponse(c, seqdto.ProjectNumberOutput{ProjectNumber: number}, nil)
	})
}

// HandleCounterStatus xử lý GET /sequences/status — xem giá trị đếm hiện tại
// của một phòng ban mà không tăng counter. Query: departmentName.
func (h *ProjectNumberHandler) HandleCounterStatus(c fiber.Ctx) error {
	return basehdl.SafeHandler(c, func() error {
		departmentName := c.Query("departmentName")

		code, value, err := h.ProjectNumberService.PeekCurrentValue(c.Context(), departmentName)
		if err != nil {
			return basehdl.HandleResponse(c, nil, err)
		}

		return basehdl.HandleResponse(c, seqdto.CounterStatusOutput{
			DepartmentCode: code,
			CurrentValue:   value,
		}, nil)
	})
}
