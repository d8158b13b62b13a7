package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	NodeID   string `mapstructure:"node_id"`
	Stage    string `mapstructure:"stage"`
	LogLevel string `mapstructure:"log_level"`
	// WorkerID 雪花ID节点号
	WorkerID int64 `mapstructure:"worker_id"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// AutoMigrate 启动时创建表和索引
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN 生成 pgx 连接串
func (c DatabaseConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		c.User, c.Password, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), c.Name, sslMode)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr 返回 host:port
func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type RealtimeConfig struct {
	PushTimeout       time.Duration `mapstructure:"push_timeout"`
	ConnectionTTL     time.Duration `mapstructure:"connection_ttl"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	MaxMessageLength  int           `mapstructure:"max_message_length"`
	SubscriberWorkers int           `mapstructure:"subscriber_workers"`
	SubscriberBuffer  int           `mapstructure:"subscriber_buffer"`
}

// setDefaults 未在文件中出现的配置项取默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "im-realtime")
	v.SetDefault("app.node_id", "realtime-1")
	v.SetDefault("app.stage", "dev")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.worker_id", 1)

	v.SetDefault("server.addr", ":8090")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 50)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)

	v.SetDefault("realtime.push_timeout", 3*time.Second)
	v.SetDefault("realtime.connection_ttl", 24*time.Hour)
	v.SetDefault("realtime.sweep_interval", time.Minute)
	v.SetDefault("realtime.max_message_length", 2000)
	v.SetDefault("realtime.subscriber_workers", 8)
	v.SetDefault("realtime.subscriber_buffer", 1024)
}

// Load 从指定路径加载配置，再用环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv 从环境变量覆盖配置
func (c *Config) applyEnv() {
	// App
	c.App.NodeID = GetEnv("REALTIME_NODE_ID", c.App.NodeID)
	c.App.Stage = GetEnv("REALTIME_STAGE", c.App.Stage)
	c.App.LogLevel = GetEnv("LOG_LEVEL", c.App.LogLevel)
	c.App.WorkerID = int64(GetEnvInt("REALTIME_WORKER_ID", int(c.App.WorkerID)))

	// Server
	c.Server.Addr = GetEnv("HTTP_ADDR", c.Server.Addr)

	// Database
	c.Database.Host = GetEnv("POSTGRES_HOST", c.Database.Host)
	c.Database.Port = GetEnvInt("POSTGRES_PORT", c.Database.Port)
	c.Database.User = GetEnv("POSTGRES_USER", c.Database.User)
	c.Database.Password = GetEnv("POSTGRES_PASSWORD", c.Database.Password)
	c.Database.Name = GetEnv("POSTGRES_DB", c.Database.Name)
	c.Database.MaxOpenConns = GetEnvInt("POSTGRES_MAX_OPEN_CONNS", c.Database.MaxOpenConns)

	// Redis
	c.Redis.Host = GetEnv("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = GetEnvInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = GetEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = GetEnvInt("REDIS_DB", c.Redis.DB)

	// NATS
	c.NATS.URL = GetEnv("NATS_URL", c.NATS.URL)

	// Auth
	c.Auth.JWTSecret = GetEnv("JWT_SECRET", c.Auth.JWTSecret)

	// Realtime
	c.Realtime.PushTimeout = GetEnvDuration("REALTIME_PUSH_TIMEOUT", c.Realtime.PushTimeout)
	c.Realtime.ConnectionTTL = GetEnvDuration("REALTIME_CONNECTION_TTL", c.Realtime.ConnectionTTL)
}

func (c *Config) validate() error {
	if c.App.NodeID == "" {
		return fmt.Errorf("config: app.node_id is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: auth.jwt_secret is required")
	}
	if c.Realtime.MaxMessageLength <= 0 {
		return fmt.Errorf("config: realtime.max_message_length must be positive")
	}
	if c.Realtime.PushTimeout <= 0 {
		return fmt.Errorf("config: realtime.push_timeout must be positive")
	}
	return nil
}
