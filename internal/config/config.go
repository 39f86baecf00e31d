// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ericfisherdev/qrsignin/internal/domain/model"
)

// Store backends selectable with QRSIGNIN_STORE.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	APIURL       string
	ConfirmMode  model.ConfirmMode
	ConfirmURL   string
	AllowedHosts []string
	Cooldown     time.Duration
	HTTPTimeout  time.Duration
	DeviceName   string
	Store        string
	DBPath       string
	RedisURL     string
	SecretKey    []byte // 32-byte AES-256 key; nil when QRSIGNIN_SECRET_KEY is unset.
	CameraDevice string
	ListenAddr   string
	LogLevel     slog.Level
}

// HasCameraDevice returns true when scanning is gated on access to a video device.
func (c *Config) HasCameraDevice() bool {
	return c.CameraDevice != ""
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables and returns a validated Config.
// Every variable is optional; see the defaults below. QRSIGNIN_SECRET_KEY, when
// present, must be 64 hex characters.
func Load() (*Config, error) {
	apiURL := "http://localhost:8000/api"
	if v, ok := os.LookupEnv("QRSIGNIN_API_URL"); ok && v != "" {
		apiURL = strings.TrimRight(v, "/")
	}
	apiHost, err := httpURLHost(apiURL)
	if err != nil {
		return nil, fmt.Errorf("QRSIGNIN_API_URL: %w", err)
	}

	mode := model.ConfirmModeFixed
	if v, ok := os.LookupEnv("QRSIGNIN_CONFIRM_MODE"); ok && v != "" {
		switch m := model.ConfirmMode(strings.ToLower(v)); m {
		case model.ConfirmModeFixed, model.ConfirmModeDynamic:
			mode = m
		default:
			return nil, fmt.Errorf("QRSIGNIN_CONFIRM_MODE has invalid value %q: expected fixed or dynamic", v)
		}
	}

	confirmURL := apiURL + "/signin"
	if v, ok := os.LookupEnv("QRSIGNIN_CONFIRM_URL"); ok && v != "" {
		if _, err := httpURLHost(v); err != nil {
			return nil, fmt.Errorf("QRSIGNIN_CONFIRM_URL: %w", err)
		}
		confirmURL = v
	}

	allowedHosts := []string{apiHost}
	if v, ok := os.LookupEnv("QRSIGNIN_ALLOWED_HOSTS"); ok && v != "" {
		allowedHosts = splitList(v)
	}

	cooldown, err := durationEnv("QRSIGNIN_COOLDOWN", 3*time.Second)
	if err != nil {
		return nil, err
	}
	httpTimeout, err := durationEnv("QRSIGNIN_HTTP_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	deviceName := os.Getenv("QRSIGNIN_DEVICE_NAME")
	if deviceName == "" {
		deviceName, err = os.Hostname()
		if err != nil || deviceName == "" {
			deviceName = runtime.GOOS
		}
	}

	store := StoreSQLite
	if v, ok := os.LookupEnv("QRSIGNIN_STORE"); ok && v != "" {
		switch s := strings.ToLower(v); s {
		case StoreSQLite, StoreRedis:
			store = s
		default:
			return nil, fmt.Errorf("QRSIGNIN_STORE has invalid value %q: expected sqlite or redis", v)
		}
	}

	dbPath := "qrsignin.db"
	if v, ok := os.LookupEnv("QRSIGNIN_DB_PATH"); ok && v != "" {
		dbPath = v
	}

	redisURL := "redis://localhost:6379/0"
	if v, ok := os.LookupEnv("QRSIGNIN_REDIS_URL"); ok && v != "" {
		redisURL = v
	}

	var secretKey []byte
	if v, ok := os.LookupEnv("QRSIGNIN_SECRET_KEY"); ok && v != "" {
		secretKey, err = hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("QRSIGNIN_SECRET_KEY is not valid hex: %w", err)
		}
		if len(secretKey) != 32 {
			return nil, fmt.Errorf("QRSIGNIN_SECRET_KEY must be 32 bytes (64 hex chars), got %d bytes", len(secretKey))
		}
	}

	listenAddr := "127.0.0.1:8765"
	if v, ok := os.LookupEnv("QRSIGNIN_LISTEN_ADDR"); ok && v != "" {
		listenAddr = v
	}

	logLevel := slog.LevelInfo
	if v, ok := os.LookupEnv("QRSIGNIN_LOG_LEVEL"); ok && v != "" {
		if err := logLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("QRSIGNIN_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	return &Config{
		APIURL:       apiURL,
		ConfirmMode:  mode,
		ConfirmURL:   confirmURL,
		AllowedHosts: allowedHosts,
		Cooldown:     cooldown,
		HTTPTimeout:  httpTimeout,
		DeviceName:   deviceName,
		Store:        store,
		DBPath:       dbPath,
		RedisURL:     redisURL,
		SecretKey:    secretKey,
		CameraDevice: os.Getenv("QRSIGNIN_CAMERA_DEVICE"),
		ListenAddr:   listenAddr,
		LogLevel:     logLevel,
	}, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, parsed)
	}
	return parsed, nil
}

func httpURLHost(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid URL %q: expected http(s)://host", raw)
	}
	return u.Hostname(), nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
