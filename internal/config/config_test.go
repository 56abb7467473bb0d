package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := FromViper(newViper())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Session.HistoryLimit)
	assert.Equal(t, 30*time.Minute, cfg.Presence.TTL)
	assert.Equal(t, 5*time.Minute, cfg.Presence.Heartbeat)
	assert.Equal(t, 720*time.Hour, cfg.ReadProgress.TTL)
	assert.Equal(t, "chat.room.send", cfg.Kafka.Topics.Messages)
	assert.Equal(t, "chat.room.redis.update", cfg.Kafka.Topics.RoomUpdates)
	assert.Equal(t, "chat.read.receipt", cfg.Kafka.Topics.ReadReceipts)
	assert.Equal(t, "accessToken", cfg.Auth.CookieName)
	assert.True(t, cfg.Presence.LegacyRoster)
	assert.NotEmpty(t, cfg.InstanceID)
}

func TestFromViper_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("INSTANCE_ID", "chat-7")
	t.Setenv("CASSANDRA_HOSTS", "c1:9042, c2:9042")
	t.Setenv("PRESENCE_TTL", "10m")

	cfg, err := FromViper(newViper())
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Auth.Secret)
	assert.Equal(t, "chat-7", cfg.InstanceID)
	assert.Equal(t, []string{"c1:9042", "c2:9042"}, cfg.Cassandra.Hosts)
	assert.Equal(t, 10*time.Minute, cfg.Presence.TTL)
}

func TestFromViper_RejectsPingAfterPong(t *testing.T) {
	v := newViper()
	v.Set("websocket.ping_interval", "90s")
	v.Set("websocket.pong_wait", "60s")
	_, err := FromViper(v)
	assert.Error(t, err)
}

func TestFromViper_RejectsHeartbeatPastTTL(t *testing.T) {
	v := newViper()
	v.Set("presence.ttl", "1m")
	v.Set("presence.heartbeat", "2m")
	_, err := FromViper(v)
	assert.Error(t, err)
}
