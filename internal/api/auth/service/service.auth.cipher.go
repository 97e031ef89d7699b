package authsvc

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"deal_commerce/internal/common"
)

// TokenCipher mã hóa và giải mã token bằng AES-256-GCM.
// Key được nạp một lần lúc khởi động từ cấu hình; thiếu key là lỗi chết người (fatal),
// không bao giờ sinh key tạm — key tạm sẽ làm toàn bộ token đã lưu không giải mã được
// sau khi restart.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher tạo cipher từ key dạng hex 64 ký tự (32 byte).
func NewTokenCipher(hexKey string) (*TokenCipher, error) {
	if len(hexKey) != 64 {
		return nil, common.NewError(
			common.ErrCodeCredentialCipher,
			fmt.Sprintf("Key mã hóa phải là 64 ký tự hex, nhận được %d ký tự", len(hexKey)),
			common.StatusInternalServerError,
			nil,
		)
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, common.NewError(
			common.ErrCodeCredentialCipher,
			"Key mã hóa không phải hex hợp lệ",
			common.StatusInternalServerError,
			err,
		)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, common.NewError(
			common.ErrCodeCredentialCipher,
			"Không thể khởi tạo AES cipher",
			common.StatusInternalServerError,
			err,
		)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, common.NewError(
			common.ErrCodeCredentialCipher,
			"Không thể khởi tạo GCM mode",
			common.StatusInternalServerError,
			err,
		)
	}

	return &TokenCipher{aead: aead}, nil
}

// Encrypt mã hóa plaintext, trả về (ciphertext base64, nonce base64).
// Nonce sinh ngẫu nhiên cho MỖI lần gọi — hai lần mã hóa cùng một token
// cho ra ciphertext khác nhau.
func (c *TokenCipher) Encrypt(plaintext string) (string, string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", "", common.NewError(
			common.ErrCodeCredentialCipher,
			"Không thể sinh nonce ngẫu nhiên",
			common.StatusInternalServerError,
			err,
		)
	}

	ciphertext := c.aead.Seal(nil, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(ciphertext),
		base64.StdEncoding.EncodeToString(nonce),
		nil
}

// Decrypt giải mã ciphertext với nonce tương ứng.
// Trả về common.ErrDecryption khi key sai, dữ liệu hỏng, hoặc nonce không khớp —
// caller phân biệt được lỗi giải mã với lỗi database.
func (c *TokenCipher) Decrypt(ciphertextB64, nonceB64 string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", common.ErrDecryption
	}

	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil {
		return "", common.ErrDecryption
	}

	if len(nonce) != c.aead.NonceSize() {
		return "", common.ErrDecryption
	}

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", common.ErrDecryption
	}

	return string(plaintext), nil
}
