package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	pkgconfig "github.com/weiawesome/wes-chat-realtime/pkg/config"
	"github.com/weiawesome/wes-chat-realtime/pkg/database"
)

type Config struct {
	Server       ServerConfig
	GRPC         GRPCConfig
	InstanceID   string `mapstructure:"instance_id"`
	WebSocket    WebSocketConfig
	Session      SessionConfig
	Auth         AuthConfig
	Kafka        KafkaConfig
	Redis        RedisConfig
	Presence     PresenceConfig
	ReadProgress ReadProgressConfig `mapstructure:"read_progress"`
	Cassandra    CassandraConfig
	Database     database.Config
	CORS         CORSConfig
	Log          LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type GRPCConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type SessionConfig struct {
	HistoryLimit      int           `mapstructure:"history_limit"`
	SideEffectTimeout time.Duration `mapstructure:"side_effect_timeout"`
	FrameRate         float64       `mapstructure:"frame_rate"`
	FrameBurst        int           `mapstructure:"frame_burst"`
}

type AuthConfig struct {
	Secret     string
	Issuer     string
	CookieName string `mapstructure:"cookie_name"`
}

type KafkaTopics struct {
	Messages     string
	RoomUpdates  string `mapstructure:"room_updates"`
	ReadReceipts string `mapstructure:"read_receipts"`
}

type KafkaConfig struct {
	Brokers         string
	Partitions      int
	GroupPrefix     string `mapstructure:"group_prefix"`
	AutoOffsetReset string `mapstructure:"auto_offset_reset"`
	Topics          KafkaTopics
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type PresenceConfig struct {
	TTL          time.Duration
	Heartbeat    time.Duration
	LegacyRoster bool `mapstructure:"legacy_roster"`
}

type ReadProgressConfig struct {
	TTL               time.Duration
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	ReconcileBatch    int           `mapstructure:"reconcile_batch"`
}

type CassandraConfig struct {
	Hosts          []string
	Keyspace       string
	Username       string
	Password       string
	Consistency    string
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	Timeout        time.Duration
	NumConns       int `mapstructure:"num_conns"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper applies defaults and env bindings to v and decodes it.
func FromViper(v *viper.Viper) (*Config, error) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50070)
	v.SetDefault("instance_id", "")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("session.history_limit", 30)
	v.SetDefault("session.side_effect_timeout", "5s")
	v.SetDefault("session.frame_rate", 20.0)
	v.SetDefault("session.frame_burst", 40)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.cookie_name", "accessToken")
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.partitions", 8)
	v.SetDefault("kafka.group_prefix", "chat-realtime")
	v.SetDefault("kafka.auto_offset_reset", "latest")
	v.SetDefault("kafka.topics.messages", "chat.room.send")
	v.SetDefault("kafka.topics.room_updates", "chat.room.redis.update")
	v.SetDefault("kafka.topics.read_receipts", "chat.read.receipt")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("presence.ttl", "30m")
	v.SetDefault("presence.heartbeat", "5m")
	v.SetDefault("presence.legacy_roster", true)
	v.SetDefault("read_progress.ttl", "720h")
	v.SetDefault("read_progress.reconcile_interval", "1m")
	v.SetDefault("read_progress.reconcile_batch", 100)
	v.SetDefault("cassandra.hosts", []string{"localhost:9042"})
	v.SetDefault("cassandra.keyspace", "chat")
	v.SetDefault("cassandra.consistency", "LOCAL_QUORUM")
	v.SetDefault("cassandra.connect_timeout", "10s")
	v.SetDefault("cassandra.timeout", "5s")
	v.SetDefault("cassandra.num_conns", 2)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "chat")
	v.SetDefault("database.db_name", "chat")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.BindEnv("server.port", "PORT")
	v.BindEnv("grpc.port", "GRPC_PORT")
	v.BindEnv("instance_id", "INSTANCE_ID")
	v.BindEnv("auth.secret", "JWT_SECRET")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("cassandra.hosts", "CASSANDRA_HOSTS")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)
	cfg.Session.SideEffectTimeout = pkgconfig.Duration(v, "session.side_effect_timeout", 5*time.Second)
	cfg.Presence.TTL = pkgconfig.Duration(v, "presence.ttl", 30*time.Minute)
	cfg.Presence.Heartbeat = pkgconfig.Duration(v, "presence.heartbeat", 5*time.Minute)
	cfg.ReadProgress.TTL = pkgconfig.Duration(v, "read_progress.ttl", 30*24*time.Hour)
	cfg.ReadProgress.ReconcileInterval = pkgconfig.Duration(v, "read_progress.reconcile_interval", time.Minute)
	cfg.Cassandra.ConnectTimeout = pkgconfig.Duration(v, "cassandra.connect_timeout", 10*time.Second)
	cfg.Cassandra.Timeout = pkgconfig.Duration(v, "cassandra.timeout", 5*time.Second)

	// CASSANDRA_HOSTS arrives as one comma-separated string.
	cfg.Cassandra.Hosts = splitList(strings.Join(cfg.Cassandra.Hosts, ","))

	if cfg.InstanceID == "" {
		cfg.InstanceID = defaultInstanceID()
	}

	if cfg.WebSocket.PingInterval >= cfg.WebSocket.PongWait {
		return nil, fmt.Errorf("websocket.ping_interval (%s) must be shorter than websocket.pong_wait (%s)",
			cfg.WebSocket.PingInterval, cfg.WebSocket.PongWait)
	}
	if cfg.Presence.Heartbeat >= cfg.Presence.TTL {
		return nil, fmt.Errorf("presence.heartbeat (%s) must be shorter than presence.ttl (%s)",
			cfg.Presence.Heartbeat, cfg.Presence.TTL)
	}
	if cfg.Session.HistoryLimit <= 0 {
		cfg.Session.HistoryLimit = 30
	}

	return &cfg, nil
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "chat"
	}
	return host + "-" + uuid.NewString()[:8]
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
