package global

import (
	"os"
	"strconv"
	"time"
)

// AppConfig holds everything the single chat process needs. Defaults suit
// local development; every field has an environment override.
type AppConfig struct {
	Addr           string // HTTP/WS listen address
	AllowedOrigin  string // CORS allow-list entry, "*" for any
	MaxBodyBytes   int64  // request body cap (images travel base64 in JSON)
	NodeID         int64  // snowflake node for connection ids
	JwtSecret      string
	MongoURI       string
	MongoDatabase  string
	MongoUser      string
	MongoPassword  string
	MongoPoolSize  int
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	PresenceTTL    time.Duration // redis presence mirror key TTL
	UploadEndpoint string        // object storage collaborator, empty disables images
	FanoutWorkers  int
	FanoutQueue    int
}

var Config = defaults()

func defaults() AppConfig {
	return AppConfig{
		Addr:          ":5000",
		AllowedOrigin: "*",
		MaxBodyBytes:  4 << 20,
		NodeID:        1,
		JwtSecret:     "dev-only-secret-change-me",
		MongoURI:      "mongodb://localhost:27017",
		MongoDatabase: "quickchat",
		MongoPoolSize: 20,
		RedisAddr:     "127.0.0.1:6379",
		PresenceTTL:   90 * time.Second,
		FanoutWorkers: 8,
		FanoutQueue:   4096,
	}
}

// Load applies environment overrides. Call once from main.
func Load() {
	c := &Config
	envStr("QCHAT_ADDR", &c.Addr)
	envStr("QCHAT_ALLOWED_ORIGIN", &c.AllowedOrigin)
	envInt64("QCHAT_MAX_BODY_BYTES", &c.MaxBodyBytes)
	envInt64("QCHAT_NODE_ID", &c.NodeID)
	envStr("QCHAT_JWT_SECRET", &c.JwtSecret)
	envStr("QCHAT_MONGO_URI", &c.MongoURI)
	envStr("QCHAT_MONGO_DB", &c.MongoDatabase)
	envStr("QCHAT_MONGO_USER", &c.MongoUser)
	envStr("QCHAT_MONGO_PASSWORD", &c.MongoPassword)
	envInt("QCHAT_MONGO_POOL", &c.MongoPoolSize)
	envStr("QCHAT_REDIS_ADDR", &c.RedisAddr)
	envStr("QCHAT_REDIS_PASSWORD", &c.RedisPassword)
	envInt("QCHAT_REDIS_DB", &c.RedisDB)
	envDur("QCHAT_PRESENCE_TTL", &c.PresenceTTL)
	envStr("QCHAT_UPLOAD_ENDPOINT", &c.UploadEndpoint)
	envInt("QCHAT_FANOUT_WORKERS", &c.FanoutWorkers)
	envInt("QCHAT_FANOUT_QUEUE", &c.FanoutQueue)
}

func (c AppConfig) JwtSecretBytes() []byte { return []byte(c.JwtSecret) }

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envDur(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
