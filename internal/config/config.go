package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config centraliza la configuración cargada del entorno.
type Config struct {
	Port            int
	DBDSN           string
	RedisURL        string
	JWTAccessTTL    time.Duration
	JWTRefreshTTL   time.Duration
	JWTSecret       string
	AllowOrigins    []string
	RateLimitPublic RateLimitConfig
	RateLimitAuth   RateLimitConfig
	RateLimitIntake RateLimitConfig
	Zona            string
	PublicBaseURL   string
	ActasDir        string
	CatalogCacheTTL time.Duration
	SMTP            SMTPConfig
	Storage         StorageConfig
}

// RateLimitConfig representa límites simples de throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// SMTPConfig agrupa el transporte de correo. Host vacío deshabilita el envío.
type SMTPConfig struct {
	Host      string
	Port      int
	Usuario   string
	Clave     string
	Remitente string
	Timeout   time.Duration
}

// Habilitado indica si hay un servidor SMTP configurado.
func (c SMTPConfig) Habilitado() bool {
	return strings.TrimSpace(c.Host) != ""
}

// StorageConfig describe el respaldo remoto de actas (S3/R2).
type StorageConfig struct {
	Provider    string
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3PublicURL string
}

// Load carga variables de entorno y aplica valores por defecto.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	port, err := parseIntEnv("PORT", 8080)
	if err != nil || port <= 0 {
		return nil, errors.New("PORT inválido")
	}
	cfg.Port = port

	cfg.DBDSN = getEnv("DB_DSN", "")
	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN obligatorio")
	}

	cfg.RedisURL = getEnv("REDIS_URL", "")
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL obligatorio")
	}

	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", ""))
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET debe tener al menos 32 caracteres")
	}

	if cfg.JWTAccessTTL, err = parseDurationEnv("JWT_ACCESS_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.JWTRefreshTTL, err = parseDurationEnv("JWT_REFRESH_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}

	for _, origin := range strings.Split(getEnv("ALLOW_ORIGINS", ""), ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
		}
	}

	cfg.RateLimitPublic = RateLimitConfig{RequestsPerSecond: 10, Burst: 20}
	cfg.RateLimitAuth = RateLimitConfig{RequestsPerSecond: 10, Burst: 40}
	cfg.RateLimitIntake = RateLimitConfig{RequestsPerSecond: 0.2, Burst: 5}

	cfg.Zona = strings.TrimSpace(getEnv("TIMEZONE", "America/Santiago"))
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(getEnv("PUBLIC_BASE_URL", "http://localhost:5173")), "/")
	cfg.ActasDir = strings.TrimSpace(getEnv("ACTAS_DIR", "data/actas"))

	if cfg.CatalogCacheTTL, err = parseDurationEnv("CATALOG_CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}

	smtpPort, err := parseIntEnv("SMTP_PORT", 587)
	if err != nil {
		return nil, errors.New("SMTP_PORT inválido")
	}
	cfg.SMTP = SMTPConfig{
		Host:      strings.TrimSpace(getEnv("SMTP_HOST", "")),
		Port:      smtpPort,
		Usuario:   getEnv("SMTP_USER", ""),
		Clave:     getEnv("SMTP_PASSWORD", ""),
		Remitente: strings.TrimSpace(getEnv("SMTP_FROM", "")),
	}
	if cfg.SMTP.Timeout, err = parseDurationEnv("SMTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.SMTP.Habilitado() && cfg.SMTP.Remitente == "" {
		cfg.SMTP.Remitente = cfg.SMTP.Usuario
	}

	cfg.Storage = StorageConfig{
		Provider:    strings.ToLower(strings.TrimSpace(getEnv("STORAGE_PROVIDER", "noop"))),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3Region:    getEnv("S3_REGION", "auto"),
		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3PublicURL: getEnv("S3_PUBLIC_URL", ""),
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func parseIntEnv(key string, def int) (int, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	return strconv.Atoi(val)
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.New(key + " inválido")
	}
	return dur, nil
}
