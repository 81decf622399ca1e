package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv" // 引入這個庫來讀取 .env 檔案
)

// Config 結構體用於儲存應用程式的配置
type Config struct {
	MongoDBURI   string
	DBName       string
	Port         string
	JWTSecret    string
	FrontendURL  string // CORS 允許的前端網域
	RedisURL     string // 空字串表示單一實例，不啟用 Redis 廣播
	AppEnv       string // development / production
	LogLevel     string
	MeetupOTPTTL time.Duration // 面交確認碼有效時間
	StoreBackend string        // mongo / memory
	SeedFile     string        // memory 模式下載入的使用者與商品 JSON
}

// LoadConfig 載入配置，優先從環境變數讀取，其次從 .env 檔案讀取
func LoadConfig() *Config {
	// 嘗試載入 .env 檔案，如果不存在也不會報錯
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, relying on environment variables.")
	}

	cfg := &Config{
		MongoDBURI:   getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		DBName:       getEnv("DB_NAME", "campus_kart"),
		Port:         getEnv("PORT", "5000"),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		FrontendURL:  getEnv("FRONTEND_URL", "http://localhost:5173"),
		RedisURL:     getEnv("REDIS_URL", ""),
		AppEnv:       getEnv("APP_ENV", "development"),
		LogLevel:     getEnv("LOG_LEVEL", ""),
		MeetupOTPTTL: getDuration("MEETUP_OTP_TTL", 10*time.Minute),
		StoreBackend: getEnv("STORE_BACKEND", "mongo"),
		SeedFile:     getEnv("SEED_FILE", ""),
	}
	return cfg
}

// getEnv 輔助函數，用於從環境變數獲取值，如果不存在則使用預設值
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getDuration 讀取 time.ParseDuration 格式的環境變數，格式錯誤時使用預設值
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Printf("Invalid %s=%q, using default %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}
