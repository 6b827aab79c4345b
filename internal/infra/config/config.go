// Пакет config отвечает за сбор и предоставление конфигурации всего приложения
// (менеджер сессий Telegram поверх MTProto). Он:
//  1. читает переменные окружения из .env (через godotenv),
//  2. разбирает пул API-учёток (пары id:hash),
//  3. нормализует и валидирует входные значения, накапливая предупреждения,
//  4. отдаёт итог как явное значение *Config — без глобального синглтона:
//     конфигурация собирается один раз на старте и передаётся компонентам явно.
//
// Бизнес-контекст: конфиг управляет пулом учёток приложения, политикой ретраев
// и flood-wait, размером батчей массовых операций, границей конкурентности,
// путями хранилищ (каталог секретов, реестр, счётчики учёток) и шифрованием
// секретов в покое.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Credential — пара (API ID, API hash), которой приложение представляется Telegram.
// Это учётка приложения, не путать с секретом конкретного аккаунта.
type Credential struct {
	ID   int
	Hash string
}

// EnvConfig описывает параметры, приходящие из окружения (.env). Значения уже
// прошли минимальную валидацию и нормализацию в loadConfig; в рантайме
// предполагается, что EnvConfig последователен.
type EnvConfig struct {
	Credentials []Credential

	SessionDir    string
	RegistryFile  string
	CredStateFile string

	MaxRetries     int
	RetryBaseDelay time.Duration
	MaxFloodWait   time.Duration
	BatchSize      int
	BatchDelay     time.Duration
	Concurrency    int
	ThrottleRPS    int

	CredUsageCeiling int
	CredCooldown     time.Duration

	// Шифрование секретов в покое. SessionKey — готовый ключ (64 hex-символа)
	// либо парольная фраза для argon2id; SessionEncrypt=true при пустом ключе
	// означает «сгенерировать ключ и показать один раз».
	SessionKey     string
	SessionEncrypt bool

	LogLevel string
	// Файловое логирование (LOG_FILE без дефолта: пусто — файл не ведётся).
	LogFile           string
	LogFileLevel      string
	LogFileMaxSize    int
	LogFileMaxBackups int
	LogFileMaxAge     int
	LogFileCompress   bool

	TestDC bool
}

// Config хранит конфигурацию среды и накопленные при загрузке предупреждения.
type Config struct {
	env      EnvConfig
	warnings []string
}

// Значения по умолчанию для параметров окружения.
const (
	defaultSessionDir    = "sessions"
	defaultRegistryFile  = "sessions.db"
	defaultCredStateFile = "data/credentials.bbolt"

	defaultMaxRetries     = 5
	defaultRetryBaseDelay = 5    // сек
	defaultMaxFloodWait   = 3600 // сек
	defaultBatchSize      = 100
	defaultBatchDelayMS   = 500
	defaultConcurrency    = 4
	defaultThrottleRPS    = 1

	defaultCredUsageCeiling = 100
	defaultCredCooldownSec  = 3600

	defaultLogLevel = "info"
	// Файловое логирование
	defaultLogFileLevel      = "debug"
	defaultLogFileMaxSize    = 50
	defaultLogFileMaxBackups = 3
	defaultLogFileMaxAge     = 7
	defaultLogFileCompress   = true
)

// Load читает .env по указанному пути и собирает конфигурацию. Ошибка возвращается
// только для критичных параметров (API_CREDENTIALS); остальное деградирует к
// дефолтам с предупреждением. Результат передаётся компонентам явно.
func Load(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return loadConfig()
}

// loadConfig выполняет фактическую загрузку/валидацию из текущего окружения.
// Вынесено отдельно, чтобы тесты могли собирать Config без файла .env.
func loadConfig() (*Config, error) {
	creds, err := ParseCredentials(os.Getenv("API_CREDENTIALS"))
	if err != nil {
		return nil, err
	}

	var warnings []string

	env := EnvConfig{
		Credentials: creds,

		SessionDir:    sanitizeFile("SESSION_DIR", os.Getenv("SESSION_DIR"), defaultSessionDir, &warnings),
		RegistryFile:  sanitizeFile("REGISTRY_FILE", os.Getenv("REGISTRY_FILE"), defaultRegistryFile, &warnings),
		CredStateFile: sanitizeFile("CRED_STATE_FILE", os.Getenv("CRED_STATE_FILE"), defaultCredStateFile, &warnings),

		MaxRetries: parseIntDefault("MAX_RETRIES", defaultMaxRetries, greaterThanZero, &warnings),
		RetryBaseDelay: time.Duration(
			parseIntDefault("RETRY_BASE_DELAY_SEC", defaultRetryBaseDelay, greaterThanZero, &warnings)) * time.Second,
		MaxFloodWait: time.Duration(
			parseIntDefault("MAX_FLOOD_WAIT_SEC", defaultMaxFloodWait, greaterThanZero, &warnings)) * time.Second,
		BatchSize: parseIntDefault("BATCH_SIZE", defaultBatchSize, greaterThanZero, &warnings),
		BatchDelay: time.Duration(
			parseIntDefault("BATCH_DELAY_MS", defaultBatchDelayMS, nonNegative, &warnings)) * time.Millisecond,
		Concurrency: parseIntDefault("CONCURRENT_CONNECTIONS", defaultConcurrency, greaterThanZero, &warnings),
		ThrottleRPS: parseIntDefault("THROTTLE_RPS", defaultThrottleRPS, greaterThanZero, &warnings),

		CredUsageCeiling: parseIntDefault("CRED_USAGE_CEILING", defaultCredUsageCeiling, greaterThanZero, &warnings),
		CredCooldown: time.Duration(
			parseIntDefault("CRED_COOLDOWN_SEC", defaultCredCooldownSec, greaterThanZero, &warnings)) * time.Second,

		SessionKey:     strings.TrimSpace(os.Getenv("SESSION_KEY")),
		SessionEncrypt: parseBoolDefault("SESSION_ENCRYPT", false, &warnings),

		LogLevel: sanitizeLogLevel(os.Getenv("LOG_LEVEL"), defaultLogLevel, &warnings),

		LogFile:           strings.TrimSpace(os.Getenv("LOG_FILE")),
		LogFileLevel:      sanitizeLogLevel(os.Getenv("LOG_FILE_LEVEL"), defaultLogFileLevel, &warnings),
		LogFileMaxSize:    parseIntDefault("LOG_FILE_MAX_SIZE_MB", defaultLogFileMaxSize, greaterThanZero, &warnings),
		LogFileMaxBackups: parseIntDefault("LOG_FILE_MAX_BACKUPS", defaultLogFileMaxBackups, nonNegative, &warnings),
		LogFileMaxAge:     parseIntDefault("LOG_FILE_MAX_AGE_DAYS", defaultLogFileMaxAge, nonNegative, &warnings),
		LogFileCompress:   parseBoolDefault("LOG_FILE_COMPRESS", defaultLogFileCompress, &warnings),

		TestDC: strings.EqualFold(strings.TrimSpace(os.Getenv("TEST_DC")), "true"),
	}

	if env.SessionKey != "" && env.SessionEncrypt {
		appendWarningf(&warnings, "both SESSION_KEY and SESSION_ENCRYPT are set; SESSION_KEY takes precedence")
	}

	return &Config{env: env, warnings: warnings}, nil
}

// Env возвращает снимок параметров окружения.
func (c *Config) Env() EnvConfig {
	return c.env
}

// Warnings возвращает накопленные предупреждения загрузки (копию).
func (c *Config) Warnings() []string {
	result := make([]string, len(c.warnings))
	copy(result, c.warnings)
	return result
}

// ParseCredentials разбирает строку вида "id:hash,id:hash,..." в пул учёток.
// Порядок объявления сохраняется: пул выбирает учётки first-fit именно в нём.
func ParseCredentials(value string) ([]Credential, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return nil, errors.New("env API_CREDENTIALS must be set (format: id:hash[,id:hash...])")
	}

	parts := strings.Split(raw, ",")
	creds := make([]Credential, 0, len(parts))
	seen := make(map[int]struct{}, len(parts))
	for _, part := range parts {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}
		idStr, hash, ok := strings.Cut(token, ":")
		if !ok {
			return nil, fmt.Errorf("invalid API_CREDENTIALS entry %q: expected id:hash", token)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idStr))
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid API_CREDENTIALS id %q: must be a positive integer", idStr)
		}
		hash = strings.TrimSpace(hash)
		if hash == "" {
			return nil, fmt.Errorf("invalid API_CREDENTIALS entry %q: empty hash", token)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate API_CREDENTIALS id %d", id)
		}
		seen[id] = struct{}{}
		creds = append(creds, Credential{ID: id, Hash: hash})
	}
	if len(creds) == 0 {
		return nil, errors.New("env API_CREDENTIALS produced no usable entries")
	}
	return creds, nil
}

// parseIntDefault читает name как int. Если пусто/некорректно/не проходит
// validator — возвращает defaultVal и пишет предупреждение.
func parseIntDefault(name string, defaultVal int, validator func(int) bool, warnings *[]string) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		appendWarningf(warnings, "env %s is not set; using default %d", name, defaultVal)
		return defaultVal
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid integer; using default %d", name, value, defaultVal)
		return defaultVal
	}
	if validator != nil && !validator(v) {
		appendWarningf(warnings, "env %s value %d does not satisfy constraints; using default %d", name, v, defaultVal)
		return defaultVal
	}
	return v
}

// parseBoolDefault читает name как bool. Пусто/некорректно — defaultVal с предупреждением.
func parseBoolDefault(name string, defaultVal bool, warnings *[]string) bool {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return defaultVal
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid boolean; using default %v", name, value, defaultVal)
		return defaultVal
	}
	return v
}

// appendWarningf — служебная функция накопления предупреждений о некорректных
// переменных окружения.
func appendWarningf(warnings *[]string, format string, args ...any) {
	if warnings == nil {
		return
	}
	*warnings = append(*warnings, fmt.Sprintf(format, args...))
}

// greaterThanZero / nonNegative — простые валидаторы чисел для parseIntDefault.
func greaterThanZero(v int) bool { return v > 0 }
func nonNegative(v int) bool     { return v >= 0 }

// sanitizeLogLevel нормализует уровень логирования и ограничивает значения
// набором {debug, info, warn, error}.
func sanitizeLogLevel(level string, defaultVal string, warnings *[]string) string {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		return defaultVal
	}
	switch lvl {
	case "debug", "info", "warn", "error":
		return lvl
	default:
		appendWarningf(warnings, "env LOG_LEVEL value %q is invalid; using default %q", level, defaultVal)
		return defaultVal
	}
}

// sanitizeFile возвращает валидный путь из окружения или fallback с предупреждением.
func sanitizeFile(name, value, fallback string, warnings *[]string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		appendWarningf(warnings, "env %s is not set; using default %q", name, fallback)
		return fallback
	}
	return v
}

// ValidatePhone проверяет канонический формат номера: "+" и 10-14 цифр.
func ValidatePhone(phone string) bool {
	phone = strings.TrimSpace(phone)
	if !strings.HasPrefix(phone, "+") || len(phone) < 11 || len(phone) > 15 {
		return false
	}
	for _, r := range phone[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
