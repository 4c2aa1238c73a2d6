package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Server   ServerConfig
	LogLevel slog.Level
	Storage  string
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Booking  BookingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	// Addr is empty when Redis is not used.
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User           string
	Password       string
	Name           string
	Host           string
	Port           int
	SSLMode        string
	MaxConns       int32
	MinConns       int32
	ConnectTimeout time.Duration
	MigrateOnStart bool
}

// DSN builds the pgx connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type AuthConfig struct {
	JWTSecret    string
	TicketSecret string
}

type BookingConfig struct {
	RateLimitPerMinute int
	MaxSeatsPerBooking int
	IdempotencyTTL     time.Duration
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverPort, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host: strEnv("SERVER_HOST", "localhost"),
		Port: serverPort,
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(strEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("%s: invalid LOG_LEVEL: %w", op, err)
	}

	storage := strings.ToLower(strEnv("STORAGE_DRIVER", StoragePostgres))
	if storage != StoragePostgres && storage != StorageMemory {
		return nil, fmt.Errorf("%s: invalid STORAGE_DRIVER %q", op, storage)
	}

	var postgresCfg PostgresConfig
	if storage == StoragePostgres {
		postgresCfg, err = loadPostgres()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisCfg := RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	}

	kafkaEnabled, err := boolEnv("KAFKA_ENABLED", false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	kafkaCfg := KafkaConfig{
		Enabled: kafkaEnabled,
		Brokers: splitList(strEnv("KAFKA_BROKERS", "localhost:9092")),
		Topic:   strEnv("KAFKA_TOPIC", "tripgo.bookings"),
	}
	if kafkaCfg.Enabled && len(kafkaCfg.Brokers) == 0 {
		return nil, fmt.Errorf("%s: KAFKA_ENABLED requires KAFKA_BROKERS", op)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("%s: missing JWT_SECRET", op)
	}

	authCfg := AuthConfig{
		JWTSecret:    jwtSecret,
		TicketSecret: strEnv("TICKET_SECRET", jwtSecret),
	}

	rate, err := intEnv("RATE_LIMIT_PER_MINUTE", 10)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	maxSeats, err := intEnv("MAX_SEATS_PER_BOOKING", 10)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	idemTTL, err := durationEnv("IDEMPOTENCY_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Config{
		Server:   serverCfg,
		LogLevel: level,
		Storage:  storage,
		Postgres: postgresCfg,
		Redis:    redisCfg,
		Kafka:    kafkaCfg,
		Auth:     authCfg,
		Booking: BookingConfig{
			RateLimitPerMinute: rate,
			MaxSeatsPerBooking: maxSeats,
			IdempotencyTTL:     idemTTL,
		},
	}, nil
}

func loadPostgres() (PostgresConfig, error) {
	port, err := intEnv("POSTGRES_PORT", 5432)
	if err != nil {
		return PostgresConfig{}, err
	}

	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		return PostgresConfig{}, fmt.Errorf("missing POSTGRES_USER")
	}

	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		return PostgresConfig{}, fmt.Errorf("missing POSTGRES_PASSWORD")
	}

	name := os.Getenv("POSTGRES_DB")
	if name == "" {
		return PostgresConfig{}, fmt.Errorf("missing POSTGRES_DB")
	}

	maxConns, err := intEnv("POSTGRES_MAX_CONNS", 0)
	if err != nil {
		return PostgresConfig{}, err
	}

	minConns, err := intEnv("POSTGRES_MIN_CONNS", 0)
	if err != nil {
		return PostgresConfig{}, err
	}

	connectTimeout, err := durationEnv("POSTGRES_CONNECT_TIMEOUT", 5*time.Second)
	if err != nil {
		return PostgresConfig{}, err
	}

	migrate, err := boolEnv("MIGRATE_ON_START", true)
	if err != nil {
		return PostgresConfig{}, err
	}

	return PostgresConfig{
		User:           user,
		Password:       password,
		Name:           name,
		Host:           strEnv("POSTGRES_HOST", "localhost"),
		Port:           port,
		SSLMode:        strEnv("POSTGRES_SSLMODE", "disable"),
		MaxConns:       int32(maxConns),
		MinConns:       int32(minConns),
		ConnectTimeout: connectTimeout,
		MigrateOnStart: migrate,
	}, nil
}

func strEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func boolEnv(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}

	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
