package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration.
type Config struct {
	Port     string
	GRPCPort string
	GinMode  string

	DBDSN string

	AMQPURL      string
	AMQPExchange string

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RateLimitWSPerMin  int
	RateLimitAPIPerMin int

	OTLPEndpoint string
	ServiceName  string
	Environment  string

	ScheduleLookahead time.Duration
	JoinURLBase       string
	AllowedOrigins    []string
	DebugRoutes       bool
}

// Load reads an optional .env file and then the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	return Config{
		Port:               getEnv("PORT", "8083"),
		GRPCPort:           getEnv("GRPC_PORT", "9093"),
		GinMode:            getEnv("GIN_MODE", "release"),
		DBDSN:              getEnv("DB_DSN", ""),
		AMQPURL:            getEnv("AMQP_URL", ""),
		AMQPExchange:       getEnv("AMQP_EXCHANGE", "sync.events"),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		RateLimitWSPerMin:  getEnvInt("RATE_LIMIT_WS_PER_MIN", 30),
		RateLimitAPIPerMin: getEnvInt("RATE_LIMIT_API_PER_MIN", 120),
		OTLPEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:        getEnv("SERVICE_NAME", "sync-service"),
		Environment:        getEnv("ENVIRONMENT", "dev"),
		ScheduleLookahead:  time.Duration(getEnvInt("SCHEDULE_LOOKAHEAD_MS", 300)) * time.Millisecond,
		JoinURLBase:        getEnv("JOIN_URL_BASE", "https://listen.local/join/"),
		AllowedOrigins:     origins(getEnv("ALLOWED_ORIGINS", "*")),
		DebugRoutes:        getEnvBool("DEBUG_ROUTES", false),
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil {
		log.Printf("invalid %s, using %d: %v", key, fallback, err)
		return fallback
	}
	return val
}

func getEnvBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return val
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func origins(raw string) []string {
	if list := splitList(raw); len(list) > 0 {
		return list
	}
	return []string{"*"}
}
