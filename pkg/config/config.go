package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreFirestore = "firestore"
	StoreMemory    = "memory"

	AuthFirebase = "firebase"
	AuthJWT      = "jwt"

	PresenceMemory = "memory"
	PresenceRedis  = "redis"
)

type Config struct {
	ServerPort     string
	Environment    string
	AllowedOrigins []string

	FirebaseProject        string
	FirebaseCredentialPath string
	FirebaseCredentialJSON string
	StorageBucket          string

	StoreBackend    string
	AuthProvider    string
	JWTSecret       string
	JWTExpiry       time.Duration
	PresenceBackend string
	RedisURL        string

	KafkaBrokers []string
	RewardTopic  string

	RollbarToken string

	MaxUploadSize  int64
	MaxAttachments int
	SeedFile       string
}

func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("FIREBASE_PROJECT_ID", "")
	v.SetDefault("FIREBASE_SERVICE_ACCOUNT_PATH", "")
	v.SetDefault("FIREBASE_SERVICE_ACCOUNT_JSON", "")
	v.SetDefault("STORAGE_BUCKET", "")
	v.SetDefault("STORE_BACKEND", StoreFirestore)
	v.SetDefault("AUTH_PROVIDER", AuthFirebase)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_EXPIRY", 24*time.Hour)
	v.SetDefault("PRESENCE_BACKEND", PresenceMemory)
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("REWARD_TOPIC", "coursehub.rewards")
	v.SetDefault("ROLLBAR_TOKEN", "")
	v.SetDefault("MAX_UPLOAD_SIZE", int64(10<<20))
	v.SetDefault("MAX_ATTACHMENTS", 10)
	v.SetDefault("SEED_FILE", "")
	v.AutomaticEnv()

	cfg := &Config{
		ServerPort:             v.GetString("SERVER_PORT"),
		Environment:            v.GetString("ENVIRONMENT"),
		AllowedOrigins:         splitList(v.GetString("ALLOWED_ORIGINS")),
		FirebaseProject:        v.GetString("FIREBASE_PROJECT_ID"),
		FirebaseCredentialPath: v.GetString("FIREBASE_SERVICE_ACCOUNT_PATH"),
		FirebaseCredentialJSON: v.GetString("FIREBASE_SERVICE_ACCOUNT_JSON"),
		StorageBucket:          v.GetString("STORAGE_BUCKET"),
		StoreBackend:           strings.ToLower(v.GetString("STORE_BACKEND")),
		AuthProvider:           strings.ToLower(v.GetString("AUTH_PROVIDER")),
		JWTSecret:              v.GetString("JWT_SECRET"),
		JWTExpiry:              v.GetDuration("JWT_EXPIRY"),
		PresenceBackend:        strings.ToLower(v.GetString("PRESENCE_BACKEND")),
		RedisURL:               v.GetString("REDIS_URL"),
		KafkaBrokers:           splitList(v.GetString("KAFKA_BROKERS")),
		RewardTopic:            v.GetString("REWARD_TOPIC"),
		RollbarToken:           v.GetString("ROLLBAR_TOKEN"),
		MaxUploadSize:          v.GetInt64("MAX_UPLOAD_SIZE"),
		MaxAttachments:         v.GetInt("MAX_ATTACHMENTS"),
		SeedFile:               v.GetString("SEED_FILE"),
	}

	return cfg, cfg.validate()
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
