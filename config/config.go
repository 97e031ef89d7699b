package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
)

// Configuration chứa thông tin tĩnh cần thiết để chạy ứng dụng.
// Nó chứa thông tin cơ sở dữ liệu, khóa mã hóa token và credentials OAuth
// của hai hệ thống bên ngoài (CRM và nền tảng kế toán).
type Configuration struct {
	Address               string `env:"ADDRESS" envDefault:"8080"`                // Cổng server
	MongoDB_ConnectionURI string `env:"MONGODB_CONNECTION_URI,required"`          // URL kết nối cơ sở dữ liệu
	MongoDB_DBName        string `env:"MONGODB_DBNAME,required"`                  // Tên cơ sở dữ liệu
	CORS_Origins          string `env:"CORS_ORIGINS" envDefault:"*"`              // Các origins được phép (phân cách bởi dấu phẩy, * = tất cả)
	RateLimit_Max         int    `env:"RATE_LIMIT_MAX" envDefault:"100"`          // Số request tối đa trong window (0 = disable rate limit)
	RateLimit_Window      int    `env:"RATE_LIMIT_WINDOW" envDefault:"60"`        // Thời gian window (giây)
	RateLimit_Enabled     bool   `env:"RATE_LIMIT_ENABLED" envDefault:"true"`     // Bật/tắt rate limiting

	// Khóa mã hóa token (AES-256-GCM, 64 ký tự hex = 32 bytes).
	// Bắt buộc phải có: nếu thiếu, server fail fast khi khởi động.
	// Không bao giờ tự sinh key ngẫu nhiên - key mới sẽ làm toàn bộ token
	// đã lưu không giải mã được sau khi restart.
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY,required"`

	// OAuth credentials cho CRM (chỉ dùng bởi refresh function, không dùng bởi core)
	CrmClientID     string `env:"CRM_CLIENT_ID,required"`     // Client ID của app CRM
	CrmClientSecret string `env:"CRM_CLIENT_SECRET,required"` // Client secret của app CRM
	CrmTokenURL     string `env:"CRM_TOKEN_URL" envDefault:"https://oauth.pipedrive.com/oauth/token"` // Token endpoint của CRM

	// OAuth credentials cho nền tảng kế toán
	AccountingClientID     string `env:"ACCOUNTING_CLIENT_ID,required"`     // Client ID của app kế toán
	AccountingClientSecret string `env:"ACCOUNTING_CLIENT_SECRET,required"` // Client secret của app kế toán
	AccountingTokenURL     string `env:"ACCOUNTING_TOKEN_URL" envDefault:"https://identity.xero.com/connect/token"` // Token endpoint của nền tảng kế toán
}

// getEnvPath trả về đường dẫn đến file env dựa trên môi trường
func getEnvPath() string {
	// Mặc định sử dụng môi trường development
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	// Tìm thư mục config
	currentDir, err := os.Getwd()
	if err != nil {
		// Sử dụng fmt.Printf vì logger có thể chưa được init ở đây
		fmt.Printf("Không thể lấy được thư mục hiện tại: %v\n", err)
		return ""
	}

	// Tìm thư mục config/env
	for {
		envDir := filepath.Join(currentDir, "config", "env")
		if _, err := os.Stat(envDir); err == nil {
			// Tìm thấy thư mục config/env
			envPath := filepath.Join(envDir, fmt.Sprintf("%s.env", env))
			return envPath
		}

		// Đi lên thư mục cha
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return ""
		}
		currentDir = parentDir
	}
}

// NewConfig sẽ đọc dữ liệu cấu hình từ file env được cung cấp
func NewConfig() *Configuration {
	envPath := getEnvPath()
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			// File env không bắt buộc (production có thể set env trực tiếp)
			fmt.Printf("Không thể load file env tại %s: %v\n", envPath, err)
		}
	}

	cfg := Configuration{}
	err := env.Parse(&cfg)
	if err != nil {
		fmt.Printf("Lỗi khi parse config: %+v\n", err)
		return nil
	}

	return &cfg
}
