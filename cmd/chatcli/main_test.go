package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursehub/internal/domain/entity"
	"coursehub/internal/domain/event"
)

func TestConfigRoundTrip(t *testing.T) {
	t.Setenv("COURSEHUB_CHAT_CONFIG", filepath.Join(t.TempDir(), "nested", "chat.toml"))

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, defaultBaseURL, cfg.baseURL())

	require.NoError(t, setConfigValue(cfg, "server.base_url", "http://chat.local"))
	require.NoError(t, setConfigValue(cfg, "AUTH.TOKEN", "tok"))
	assert.Error(t, setConfigValue(cfg, "auth.password", "x"))
	require.NoError(t, saveConfig(cfg))

	loaded, err := session()
	require.NoError(t, err)
	assert.Equal(t, "http://chat.local", loaded.baseURL())
	assert.Equal(t, "tok", loaded.Auth.Token)
}

func TestSessionRequiresToken(t *testing.T) {
	t.Setenv("COURSEHUB_CHAT_CONFIG", filepath.Join(t.TempDir(), "chat.toml"))

	_, err := session()
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	msg := event.New(event.TypeMessage, event.MessagePayload{
		ConversationID: "c1",
		Message:        &entity.Message{SenderID: "bob", Content: "hi"},
	})
	assert.Equal(t, "c1  bob: hi", describe(msg))

	presence := event.New(event.TypePresence, event.PresencePayload{UserID: "bob", Status: event.StatusOffline})
	assert.Equal(t, "bob is offline", describe(presence))

	assert.Equal(t, "pong ", describe(event.New(event.TypePong, nil)))
}
