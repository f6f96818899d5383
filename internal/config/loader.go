package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database drivers understood by the persistence layer.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const minJWTSecretLength = 32

// Config captures environment driven configuration values for the booking service.
type Config struct {
	HTTPPort            int
	DatabaseDriver      string
	DatabaseDSN         string
	JWTSecret           string
	AccessTokenTTL      time.Duration
	RefreshTokenTTL     time.Duration
	RedisAddr           string
	RedisPassword       string
	Location            *time.Location
	CancellationLockout time.Duration
	LogLevel            string
}

// LoadDotEnv merges variables from the given .env files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load parses configuration values from the current process environment.
//
// Optional fields fall back to defaults; required and malformed entries are
// reported together so operators can fix them in one pass.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:            8080,
		DatabaseDriver:      DriverSQLite,
		AccessTokenTTL:      30 * time.Minute,
		RefreshTokenTTL:     24 * time.Hour,
		Location:            time.UTC,
		CancellationLockout: 30 * time.Minute,
		LogLevel:            "info",
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 4)

	if portValue := env("GYMFLEX_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "GYMFLEX_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if driver := strings.ToLower(env("GYMFLEX_DATABASE_DRIVER")); driver != "" {
		switch driver {
		case DriverSQLite, DriverPostgres:
			cfg.DatabaseDriver = driver
		default:
			invalid = append(invalid, "GYMFLEX_DATABASE_DRIVER")
		}
	}

	cfg.DatabaseDSN = env("GYMFLEX_DATABASE_DSN")
	if cfg.DatabaseDSN == "" {
		if cfg.DatabaseDriver == DriverPostgres {
			missing = append(missing, "GYMFLEX_DATABASE_DSN")
		} else {
			cfg.DatabaseDSN = DefaultSQLiteDSN
		}
	}

	if secret := env("GYMFLEX_JWT_SECRET"); secret == "" {
		missing = append(missing, "GYMFLEX_JWT_SECRET")
	} else if len(secret) < minJWTSecretLength {
		invalid = append(invalid, "GYMFLEX_JWT_SECRET")
	} else {
		cfg.JWTSecret = secret
	}

	parseDuration("GYMFLEX_ACCESS_TOKEN_TTL", &cfg.AccessTokenTTL, &invalid, false)
	parseDuration("GYMFLEX_REFRESH_TOKEN_TTL", &cfg.RefreshTokenTTL, &invalid, false)
	parseDuration("GYMFLEX_CANCELLATION_LOCKOUT", &cfg.CancellationLockout, &invalid, true)

	cfg.RedisAddr = env("GYMFLEX_REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("GYMFLEX_REDIS_PASSWORD")

	if tz := env("GYMFLEX_TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			invalid = append(invalid, "GYMFLEX_TIMEZONE")
		} else {
			cfg.Location = loc
		}
	}

	if level := env("GYMFLEX_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// DefaultSQLiteDSN enables foreign keys, waits on locks and opens write
// transactions immediately so concurrent bookings serialize.
const DefaultSQLiteDSN = "file:gymflex.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func parseDuration(key string, target *time.Duration, invalid *[]string, allowZero bool) {
	value := env(key)
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		*invalid = append(*invalid, key)
		return
	}
	*target = d
}
