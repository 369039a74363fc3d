package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// UploadFailurePolicy は音声保存失敗時の扱いを表す。
type UploadFailurePolicy string

const (
	// UploadFailureDiscard は保存項目を作成せず、認識結果のみ返す。
	UploadFailureDiscard UploadFailurePolicy = "discard"
	// UploadFailureSaveWithoutAudio は音声なしで保存項目を作成する。
	UploadFailureSaveWithoutAudio UploadFailurePolicy = "save_without_audio"
	// UploadFailureFail はリクエスト全体をエラーにする。
	UploadFailureFail UploadFailurePolicy = "fail"
)

// Valid は定義済みのポリシーかを返す。
func (p UploadFailurePolicy) Valid() bool {
	switch p {
	case UploadFailureDiscard, UploadFailureSaveWithoutAudio, UploadFailureFail:
		return true
	}
	return false
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string

	// Azure Speech
	AzureSpeechKey      string
	AzureSpeechRegion   string
	AzureSpeechEndpoint string

	// Azure Translator
	AzureTranslatorKey      string
	AzureTranslatorRegion   string
	AzureTranslatorEndpoint string

	// Blob storage
	BlobBackend  string // "s3" or "local"
	BlobLocalDir string
	S3Bucket     string
	S3Region     string
	S3Endpoint   string

	// Audio
	AudioTempDir       string
	FFmpegPath         string
	AudioMaxUploadSize int64

	// Quota
	QuotaDefaultBytes    int64
	QuotaDefaultMaxFiles int

	// SRS
	SRSCorrectThreshold int

	// Ingestion
	RecognitionMaxWait  time.Duration
	UploadFailurePolicy UploadFailurePolicy

	// Rate Limit
	RateLimitGeneral int
	RateLimitIngest  int

	// Worker
	TempSweepInterval time.Duration
	TempMaxAge        time.Duration
	StaleSessionAfter time.Duration

	// Cookie
	CookieSecure bool
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数が優先される）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.AzureSpeechKey = os.Getenv("AZURE_SPEECH_KEY")
	if cfg.AzureSpeechKey == "" {
		missing = append(missing, "AZURE_SPEECH_KEY")
	}

	cfg.AzureSpeechRegion = os.Getenv("AZURE_SPEECH_REGION")
	if cfg.AzureSpeechRegion == "" {
		missing = append(missing, "AZURE_SPEECH_REGION")
	}

	cfg.AzureTranslatorKey = os.Getenv("AZURE_TRANSLATOR_KEY")
	if cfg.AzureTranslatorKey == "" {
		missing = append(missing, "AZURE_TRANSLATOR_KEY")
	}

	cfg.BlobBackend = getEnvString("BLOB_BACKEND", "local")
	cfg.S3Bucket = os.Getenv("S3_BUCKET")
	if cfg.BlobBackend == "s3" && cfg.S3Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if cfg.BlobBackend != "s3" && cfg.BlobBackend != "local" {
		return nil, fmt.Errorf("invalid BLOB_BACKEND: %q (allowed: s3, local)", cfg.BlobBackend)
	}

	cfg.UploadFailurePolicy = UploadFailurePolicy(getEnvString("UPLOAD_FAILURE_POLICY", string(UploadFailureDiscard)))
	if !cfg.UploadFailurePolicy.Valid() {
		return nil, fmt.Errorf("invalid UPLOAD_FAILURE_POLICY: %q", cfg.UploadFailurePolicy)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.AzureSpeechEndpoint = getEnvString("AZURE_SPEECH_ENDPOINT",
		fmt.Sprintf("https://%s.stt.speech.microsoft.com", cfg.AzureSpeechRegion))
	cfg.AzureTranslatorRegion = getEnvString("AZURE_TRANSLATOR_REGION", cfg.AzureSpeechRegion)
	cfg.AzureTranslatorEndpoint = getEnvString("AZURE_TRANSLATOR_ENDPOINT", "https://api.cognitive.microsofttranslator.com")
	cfg.BlobLocalDir = getEnvString("BLOB_LOCAL_DIR", "./data/blobs")
	cfg.S3Region = getEnvString("S3_REGION", "ap-northeast-1")
	cfg.S3Endpoint = getEnvString("S3_ENDPOINT", "")
	cfg.AudioTempDir = getEnvString("AUDIO_TEMP_DIR", os.TempDir())
	cfg.FFmpegPath = getEnvString("FFMPEG_PATH", "ffmpeg")
	cfg.AudioMaxUploadSize = getEnvInt64("AUDIO_MAX_UPLOAD_SIZE", 25*1024*1024)
	cfg.QuotaDefaultBytes = getEnvInt64("QUOTA_DEFAULT_BYTES", 100*1024*1024)
	cfg.QuotaDefaultMaxFiles = getEnvInt("QUOTA_DEFAULT_MAX_FILES", 50)
	cfg.SRSCorrectThreshold = getEnvInt("SRS_CORRECT_THRESHOLD", 3)
	cfg.RecognitionMaxWait = getEnvDuration("RECOGNITION_MAX_WAIT", 60*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitIngest = getEnvInt("RATE_LIMIT_INGEST", 20)
	cfg.TempSweepInterval = getEnvDuration("TEMP_SWEEP_INTERVAL", 10*time.Minute)
	cfg.TempMaxAge = getEnvDuration("TEMP_MAX_AGE", time.Hour)
	cfg.StaleSessionAfter = getEnvDuration("STALE_SESSION_AFTER", 12*time.Hour)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	if cfg.SRSCorrectThreshold < 1 || cfg.SRSCorrectThreshold > 5 {
		return nil, fmt.Errorf("invalid SRS_CORRECT_THRESHOLD: %d (allowed: 1-5)", cfg.SRSCorrectThreshold)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
