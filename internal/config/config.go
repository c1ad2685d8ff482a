package config

import (
	"time"

	"github.com/spf13/viper"
	pkgconfig "github.com/weiawesome/wes-io-watchparty/pkg/config"
	"github.com/weiawesome/wes-io-watchparty/pkg/pubsub"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Auth      AuthConfig
	API       APIConfig
	Transport TransportConfig
	Sync      SyncConfig
	PubSub    pubsub.Config
	Cache     CacheConfig
	Catalog   []VideoSeed
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	// HeartBeat is the STOMP heart-beat interval the broker offers.
	HeartBeat time.Duration `mapstructure:"heart_beat"`
}

type AuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	Issuer   string        `mapstructure:"issuer"`

	// Token is the bearer token a client presents.
	Token string `mapstructure:"token"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type TransportConfig struct {
	Driver            string        `mapstructure:"driver"` // "stomp", "bus"
	URL               string        `mapstructure:"url"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	HeartbeatOutgoing time.Duration `mapstructure:"heartbeat_outgoing"`
	HeartbeatIncoming time.Duration `mapstructure:"heartbeat_incoming"`
}

type SyncConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	DriftTolerance time.Duration `mapstructure:"drift_tolerance"`
	DebounceWindow time.Duration `mapstructure:"debounce_window"`
}

type CacheConfig struct {
	Driver string        `mapstructure:"driver"` // "memory", "redis"
	TTL    time.Duration `mapstructure:"ttl"`
	Prefix string        `mapstructure:"prefix"`
	Redis  RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// VideoSeed describes a catalog entry served by partyd. StartsIn schedules
// the release relative to server start; zero means on-demand.
type VideoSeed struct {
	ID              int64         `mapstructure:"id"`
	Title           string        `mapstructure:"title"`
	Description     string        `mapstructure:"description"`
	Tags            []string      `mapstructure:"tags"`
	VideoURL        string        `mapstructure:"video_url"`
	ThumbnailPath   string        `mapstructure:"thumbnail_path"`
	Username        string        `mapstructure:"username"`
	Location        string        `mapstructure:"location"`
	StartsIn        time.Duration `mapstructure:"starts_in"`
	DurationSeconds int           `mapstructure:"duration_seconds"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads ./config/config.yaml (optional) and the environment.
func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}
	return LoadFrom(v)
}

// LoadFrom applies defaults and env bindings to an already prepared viper
// instance and decodes it.
func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("auth.secret", "WATCHPARTY_AUTH_SECRET")
	v.BindEnv("auth.token", "WATCHPARTY_TOKEN")
	v.BindEnv("api.base_url", "WATCHPARTY_API_URL")
	v.BindEnv("transport.url", "WATCHPARTY_WS_URL")
	v.BindEnv("pubsub.driver", "PUBSUB_DRIVER")
	v.BindEnv("pubsub.redis.address", "REDIS_ADDRESS")
	v.BindEnv("pubsub.redis.password", "REDIS_PASSWORD")
	v.BindEnv("pubsub.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("pubsub.kafka.group_id", "KAFKA_PUBSUB_GROUP_ID")
	v.BindEnv("cache.driver", "CACHE_DRIVER")
	v.BindEnv("cache.redis.address", "REDIS_ADDRESS")
	v.BindEnv("cache.redis.password", "REDIS_PASSWORD")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.WebSocket.HeartBeat = parseDuration(v, "websocket.heart_beat", 10*time.Second)
	cfg.Auth.TokenTTL = parseDuration(v, "auth.token_ttl", 24*time.Hour)
	cfg.API.Timeout = parseDuration(v, "api.timeout", 10*time.Second)
	cfg.Transport.ReconnectDelay = parseDuration(v, "transport.reconnect_delay", 5*time.Second)
	cfg.Transport.HeartbeatOutgoing = parseDuration(v, "transport.heartbeat_outgoing", 4*time.Second)
	cfg.Transport.HeartbeatIncoming = parseDuration(v, "transport.heartbeat_incoming", 4*time.Second)
	cfg.Sync.PollInterval = parseDuration(v, "sync.poll_interval", 2*time.Second)
	cfg.Sync.DriftTolerance = parseDuration(v, "sync.drift_tolerance", 2*time.Second)
	cfg.Sync.DebounceWindow = parseDuration(v, "sync.debounce_window", 300*time.Millisecond)
	cfg.Cache.TTL = parseDuration(v, "cache.ttl", 30*time.Second)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("websocket.heart_beat", "10s")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.issuer", "wes-io-watchparty")
	v.SetDefault("auth.token", "")
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", "10s")
	v.SetDefault("transport.driver", "stomp")
	v.SetDefault("transport.url", "ws://localhost:8080/ws")
	v.SetDefault("transport.reconnect_delay", "5s")
	v.SetDefault("transport.heartbeat_outgoing", "4s")
	v.SetDefault("transport.heartbeat_incoming", "4s")
	v.SetDefault("sync.poll_interval", "2s")
	v.SetDefault("sync.drift_tolerance", "2s")
	v.SetDefault("sync.debounce_window", "300ms")
	v.SetDefault("pubsub.driver", "memory")
	v.SetDefault("pubsub.redis.address", "localhost:6379")
	v.SetDefault("pubsub.redis.password", "")
	v.SetDefault("pubsub.redis.db", 0)
	v.SetDefault("pubsub.redis.pool_size", 10)
	v.SetDefault("pubsub.redis.read_timeout", "3s")
	v.SetDefault("pubsub.redis.write_timeout", "3s")
	v.SetDefault("pubsub.kafka.brokers", "localhost:9092")
	v.SetDefault("pubsub.kafka.group_id", "watchparty")
	v.SetDefault("pubsub.kafka.partitions", 4)
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.ttl", "30s")
	v.SetDefault("cache.prefix", "watchparty")
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
