package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int

	FinanceBaseURL string
	LeagueBaseURL  string

	// CollaboratorTimeout ограничивает каждый вызов внешнего коллаборатора,
	// чтобы зависший платёжный или нотификационный сервис не вешал каскад.
	CollaboratorTimeout time.Duration

	SchedulerInterval     time.Duration
	SchedulerInitialDelay time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	financeURL := os.Getenv("FINANCE_BASE_URL")
	if financeURL == "" {
		return nil, fmt.Errorf("FINANCE_BASE_URL environment variable is not set")
	}

	leagueURL := os.Getenv("LEAGUE_BASE_URL")
	if leagueURL == "" {
		leagueURL = financeURL
	}

	port, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	collabTimeout, err := durationEnv("COLLABORATOR_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	schedInterval, err := durationEnv("SCHEDULER_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	schedDelay, err := durationEnv("SCHEDULER_INITIAL_DELAY", time.Minute)
	if err != nil {
		return nil, err
	}

	return &Config{
		DatabaseURL:           dbURL,
		JWTSecretKey:          jwtKey,
		ServerPort:            port,
		FinanceBaseURL:        financeURL,
		LeagueBaseURL:         leagueURL,
		CollaboratorTimeout:   collabTimeout,
		SchedulerInterval:     schedInterval,
		SchedulerInitialDelay: schedDelay,
	}, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}
