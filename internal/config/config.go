package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config структура конфигурации
type Config struct {
	AppEnv           string
	Port             string
	WebSocketPort    string
	LogLevel         string
	JWTSecret        string
	TelegramBotToken string
	Remote           RemoteConfig
	Broker           BrokerConfig
	Cache            CacheConfig
	Media            MediaConfig
}

// RemoteConfig выбирает хранилище документов
type RemoteConfig struct {
	Driver         string // memory, postgres, dynamodb
	DatabaseURL    string
	DatabaseConfig DatabaseConfig
	Dynamo         DynamoConfig
}

// DatabaseConfig содержит конфигурацию базы данных
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DynamoConfig содержит конфигурацию DynamoDB
type DynamoConfig struct {
	Table    string
	Region   string
	Endpoint string
}

// BrokerConfig выбирает канал уведомлений об изменениях
type BrokerConfig struct {
	Driver string // local, redis, postgres
	Redis  RedisConfig
}

// RedisConfig содержит параметры подключения к Redis
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// CacheConfig настраивает локальный кэш
type CacheConfig struct {
	Driver string // memory, sqlite
	Path   string
}

// MediaConfig выбирает хостинг для вложений
type MediaConfig struct {
	Driver     string // memory, cloudinary, s3
	Cloudinary CloudinaryConfig
	S3         S3Config
}

// CloudinaryConfig содержит конфигурацию для Cloudinary
type CloudinaryConfig struct {
	CloudName    string
	APIKey       string
	APISecret    string
	UploadFolder string
	UploadPreset string
}

// S3Config содержит конфигурацию S3-совместимого хранилища
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	PublicBaseURL   string
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
}

// LoadConfig загружает переменные из .env
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env файл не найден, используем переменные окружения")
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Ошибка конфигурации")
	}
	return cfg
}

// FromEnv собирает конфигурацию из переменных окружения без проверки
func FromEnv() *Config {
	dbConfig := DatabaseConfig{
		Host:     getEnv("PGHOST", "localhost"),
		Port:     getEnv("PGPORT", "5432"),
		User:     getEnv("PGUSER", "skillswap_user"),
		Password: getEnv("PGPASSWORD", "skillswap_pass"),
		Name:     getEnv("PGDATABASE", "skillswap"),
		SSLMode:  getEnv("PGSSLMODE", "disable"),
	}

	// Формируем строку подключения к базе данных
	dbURL := getEnv("DATABASE_URL", fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbConfig.User, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name, dbConfig.SSLMode))

	return &Config{
		AppEnv:           getEnv("APP_ENV", "production"),
		Port:             getEnv("PORT", "8080"),
		WebSocketPort:    getEnv("WS_PORT", "8081"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		Remote: RemoteConfig{
			Driver:         getEnv("REMOTE_DRIVER", "postgres"),
			DatabaseURL:    dbURL,
			DatabaseConfig: dbConfig,
			Dynamo: DynamoConfig{
				Table:    getEnv("DYNAMO_TABLE", "skillswap_documents"),
				Region:   getEnv("AWS_REGION", "us-east-1"),
				Endpoint: getEnv("DYNAMO_ENDPOINT", ""),
			},
		},
		Broker: BrokerConfig{
			Driver: getEnv("BROKER_DRIVER", "local"),
			Redis: RedisConfig{
				Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
				Prefix:   getEnv("REDIS_PREFIX", "skillswap:changes:"),
			},
		},
		Cache: CacheConfig{
			Driver: getEnv("CACHE_DRIVER", "sqlite"),
			Path:   getEnv("CACHE_PATH", "skillswap-cache.db"),
		},
		Media: MediaConfig{
			Driver: getEnv("MEDIA_DRIVER", "cloudinary"),
			Cloudinary: CloudinaryConfig{
				CloudName:    getEnv("CLOUDINARY_CLOUD_NAME", ""),
				APIKey:       getEnv("CLOUDINARY_API_KEY", ""),
				APISecret:    getEnv("CLOUDINARY_API_SECRET", ""),
				UploadFolder: getEnv("CLOUDINARY_UPLOAD_FOLDER", "skillswap"),
				UploadPreset: getEnv("CLOUDINARY_UPLOAD_PRESET", "skillswap_attachments"),
			},
			S3: S3Config{
				Bucket:          getEnv("S3_BUCKET", ""),
				Region:          getEnv("AWS_REGION", "us-east-1"),
				Endpoint:        getEnv("S3_ENDPOINT", ""),
				PublicBaseURL:   getEnv("S3_PUBLIC_BASE_URL", ""),
				UsePathStyle:    getEnv("S3_USE_PATH_STYLE", "false") == "true",
				AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
				SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			},
		},
	}
}

// IsDevelopment сообщает, запущено ли приложение в режиме разработки
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	if c.JWTSecret == "" && !c.IsDevelopment() {
		return fmt.Errorf("не задана переменная JWT_SECRET")
	}
	switch c.Remote.Driver {
	case "memory", "postgres", "dynamodb":
	default:
		return fmt.Errorf("неизвестный REMOTE_DRIVER %q", c.Remote.Driver)
	}
	switch c.Broker.Driver {
	case "local", "redis", "postgres":
	default:
		return fmt.Errorf("неизвестный BROKER_DRIVER %q", c.Broker.Driver)
	}
	if c.Broker.Driver == "postgres" && c.Remote.Driver != "postgres" {
		return fmt.Errorf("BROKER_DRIVER=postgres требует REMOTE_DRIVER=postgres")
	}
	switch c.Cache.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("неизвестный CACHE_DRIVER %q", c.Cache.Driver)
	}
	switch c.Media.Driver {
	case "memory":
	case "cloudinary":
		if c.Media.Cloudinary.CloudName == "" || c.Media.Cloudinary.APIKey == "" || c.Media.Cloudinary.APISecret == "" {
			return fmt.Errorf("не заданы параметры Cloudinary")
		}
	case "s3":
		if c.Media.S3.Bucket == "" {
			return fmt.Errorf("не задана переменная S3_BUCKET")
		}
	default:
		return fmt.Errorf("неизвестный MEDIA_DRIVER %q", c.Media.Driver)
	}
	return nil
}

// getEnv получает переменную окружения или использует дефолтное значение
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("некорректное числовое значение, используем значение по умолчанию")
		return defaultValue
	}
	return n
}
