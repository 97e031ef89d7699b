package seqsvc

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"deal_commerce/internal/common"
)

// maxDepartmentCodeLen là độ dài tối đa của mã phòng ban trong số dự án
const maxDepartmentCodeLen = 3

// DeriveDepartmentCode chuẩn hóa tên phòng ban thành mã ngắn dùng trong số dự án.
// Quy tắc: viết hoa toàn bộ, loại bỏ mọi ký tự không phải chữ hoặc số, rồi lấy
// cụm chữ cái LIÊN TIẾP đầu tiên, cắt còn tối đa 3 ký tự.
// Hàm thuần túy: cùng input luôn cho cùng output, nên hai caller cùng tên phòng ban
// luôn rơi vào cùng một chuỗi đếm.
//
// Ví dụ: "Engineering" -> "ENG", "R&D Division" -> "RDD", "3D Design" -> "DDE".
// Tên không chứa chữ cái nào ("2024!") vẫn cho ra mã ổn định 3 chữ cái
// suy từ hash của tên, để mọi tên hợp lệ đều có chuỗi đếm riêng.
func DeriveDepartmentCode(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", common.ErrRequiredField
	}

	upper := strings.ToUpper(trimmed)

	// Loại bỏ ký tự không phải chữ/số trước khi tìm cụm chữ cái
	var stripped []rune
	for _, r := range upper {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			stripped = append(stripped, r)
		}
	}

	// Tìm cụm chữ cái liên tiếp đầu tiên trong chuỗi đã làm sạch
	var code []rune
	for _, r := range stripped {
		if unicode.IsLetter(r) {
			code = append(code, r)
			if len(code) == maxDepartmentCodeLen {
				break
			}
		} else if len(code) > 0 {
			break
		}
	}

	if len(code) > 0 {
		return string(code), nil
	}

	// Không có chữ cái nào: sinh mã 3 chữ cái ổn định từ hash FNV của tên
	return hashCode(upper), nil
}

// hashCode suy mã 3 chữ cái A-Z từ hash FNV-1a của chuỗi input
func hashCode(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	sum := h.Sum32()

	letters := make([]byte, maxDepartmentCodeLen)
	for i := range letters {
		letters[i] = byte('A' + sum%26)
		sum /= 26
	}
	return string(letters)
}

// FormatProjectNumber ghép mã phòng ban và số thứ tự thành số dự án.
// Số thứ tự đệm 0 tới 3 chữ số, vượt 999 thì tự dài ra chứ không tràn.
func FormatProjectNumber(departmentCode string, sequence int64) string {
	return fmt.Sprintf("%s-%03d", departmentCode, sequence)
}
