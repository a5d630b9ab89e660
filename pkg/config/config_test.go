package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsForMemoryBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("AUTH_PROVIDER", "jwt")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092")
	t.Setenv("ALLOWED_ORIGINS", "https://app.coursehub.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, AuthJWT, cfg.AuthProvider)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"https://app.coursehub.test"}, cfg.AllowedOrigins)
	assert.EqualValues(t, 10<<20, cfg.MaxUploadSize)
	assert.Equal(t, 10, cfg.MaxAttachments)
	assert.Equal(t, PresenceMemory, cfg.PresenceBackend)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"firestore without project", map[string]string{"STORE_BACKEND": "firestore", "FIREBASE_PROJECT_ID": ""}},
		{"jwt without secret", map[string]string{"STORE_BACKEND": "memory", "AUTH_PROVIDER": "jwt", "JWT_SECRET": ""}},
		{"unknown store", map[string]string{"STORE_BACKEND": "postgres"}},
		{"unknown presence", map[string]string{"STORE_BACKEND": "memory", "AUTH_PROVIDER": "jwt", "JWT_SECRET": "x", "PRESENCE_BACKEND": "etcd"}},
		{"zero attachments", map[string]string{"STORE_BACKEND": "memory", "AUTH_PROVIDER": "jwt", "JWT_SECRET": "x", "MAX_ATTACHMENTS": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
