// Package config loads process configuration from an optional config.yaml
// and RETIREPLAN_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backend names.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendRethink  = "rethinkdb"
)

// Feed transports.
const (
	FeedDirect  = "direct"
	FeedKafka   = "kafka"
	FeedRethink = "rethinkdb"
)

const envPrefix = "RETIREPLAN"

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Auth     AuthConfig
	Audit    AuditConfig
	Claims   ClaimsConfig
	Docs     DocumentsConfig
	Postgres PostgresConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Rethink  RethinkConfig
}

type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// AuthConfig covers token verification and the privileged accounts.
type AuthConfig struct {
	MasterEmail    string
	ServiceAccount string
	JWTSigningKey  string
	JWTIssuer      string
	JWTAudience    string
}

type AuditConfig struct {
	Store         string
	RedactFields  []string
	Feed          string
	MirrorToKafka bool
}

type ClaimsConfig struct {
	Store string
}

type DocumentsConfig struct {
	Store string
}

type PostgresConfig struct {
	DSN      string
	MaxConns int32
}

type SQLiteConfig struct {
	Dir string
}

// RedisConfig mirrors the go-redis pool options the client honours.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers       []string
	ChangeTopic   string
	AuditTopic    string
	ConsumerGroup string
	Partitions    int32
	Replication   int16
}

type RethinkConfig struct {
	Addr     string
	Database string
	Table    string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("auth.jwt_issuer", "retireplan")
	v.SetDefault("auth.jwt_audience", "retireplan-api")
	v.SetDefault("auth.service_account", "audit-writer@retireplan")
	v.SetDefault("audit.store", BackendMemory)
	v.SetDefault("audit.feed", FeedDirect)
	v.SetDefault("audit.redact_fields", []string{"passwordHistory"})
	v.SetDefault("claims.store", BackendMemory)
	v.SetDefault("docs.store", BackendMemory)
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("sqlite.dir", "./data")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.change_topic", "document-changes")
	v.SetDefault("kafka.audit_topic", "audit-logs")
	v.SetDefault("kafka.consumer_group", "retireplan-audit")
	v.SetDefault("kafka.partitions", 6)
	v.SetDefault("kafka.replication", 1)
	v.SetDefault("rethink.addr", "localhost:28015")
	v.SetDefault("rethink.database", "retireplan")
	v.SetDefault("rethink.table", "documents")
}

// Load reads config.yaml from configPath when present, then applies
// environment overrides such as RETIREPLAN_AUTH_MASTER_EMAIL.
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AUDIT_REDACT_FIELDS is the historical name for the extra redaction
	// list and is honoured without the prefix.
	_ = v.BindEnv("audit.redact_fields", envPrefix+"_AUDIT_REDACT_FIELDS", "AUDIT_REDACT_FIELDS")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		Server: ServerConfig{
			Addr:            v.GetString("server.addr"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Auth: AuthConfig{
			MasterEmail:    v.GetString("auth.master_email"),
			ServiceAccount: v.GetString("auth.service_account"),
			JWTSigningKey:  v.GetString("auth.jwt_signing_key"),
			JWTIssuer:      v.GetString("auth.jwt_issuer"),
			JWTAudience:    v.GetString("auth.jwt_audience"),
		},
		Audit: AuditConfig{
			Store:         v.GetString("audit.store"),
			RedactFields:  splitList(v.GetStringSlice("audit.redact_fields")),
			Feed:          v.GetString("audit.feed"),
			MirrorToKafka: v.GetBool("audit.mirror_to_kafka"),
		},
		Claims: ClaimsConfig{Store: v.GetString("claims.store")},
		Docs:   DocumentsConfig{Store: v.GetString("docs.store")},
		Postgres: PostgresConfig{
			DSN:      v.GetString("postgres.dsn"),
			MaxConns: v.GetInt32("postgres.max_conns"),
		},
		SQLite: SQLiteConfig{Dir: v.GetString("sqlite.dir")},
		Redis: RedisConfig{
			URL:          v.GetString("redis.url"),
			PoolSize:     v.GetInt("redis.pool_size"),
			MinIdleConns: v.GetInt("redis.min_idle_conns"),
			DialTimeout:  v.GetDuration("redis.dial_timeout"),
			ReadTimeout:  v.GetDuration("redis.read_timeout"),
			WriteTimeout: v.GetDuration("redis.write_timeout"),
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(v.GetStringSlice("kafka.brokers")),
			ChangeTopic:   v.GetString("kafka.change_topic"),
			AuditTopic:    v.GetString("kafka.audit_topic"),
			ConsumerGroup: v.GetString("kafka.consumer_group"),
			Partitions:    v.GetInt32("kafka.partitions"),
			Replication:   int16(v.GetInt("kafka.replication")),
		},
		Rethink: RethinkConfig{
			Addr:     v.GetString("rethink.addr"),
			Database: v.GetString("rethink.database"),
			Table:    v.GetString("rethink.table"),
		},
	}
	return cfg, cfg.Validate()
}

// Validate checks the combinations the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.Auth.MasterEmail == "" {
		errs = append(errs, errors.New("auth.master_email is required"))
	}
	if c.Auth.ServiceAccount == "" {
		errs = append(errs, errors.New("auth.service_account is required"))
	}
	if c.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("auth.jwt_signing_key is required"))
	}
	if !oneOf(c.Audit.Store, BackendMemory, BackendPostgres, BackendSQLite) {
		errs = append(errs, fmt.Errorf("audit.store %q is not supported", c.Audit.Store))
	}
	if !oneOf(c.Claims.Store, BackendMemory, BackendRedis) {
		errs = append(errs, fmt.Errorf("claims.store %q is not supported", c.Claims.Store))
	}
	if !oneOf(c.Docs.Store, BackendMemory, BackendRethink) {
		errs = append(errs, fmt.Errorf("docs.store %q is not supported", c.Docs.Store))
	}
	if !oneOf(c.Audit.Feed, FeedDirect, FeedKafka, FeedRethink) {
		errs = append(errs, fmt.Errorf("audit.feed %q is not supported", c.Audit.Feed))
	}
	if c.Audit.Feed == FeedRethink && c.Docs.Store != BackendRethink {
		errs = append(errs, errors.New("audit.feed rethinkdb requires docs.store rethinkdb"))
	}
	if c.Audit.Store == BackendPostgres && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required for the postgres audit store"))
	}
	if c.Claims.Store == BackendRedis && c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url is required for the redis claim store"))
	}
	if (c.Audit.Feed == FeedKafka || c.Audit.MirrorToKafka) && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required"))
	}
	return errors.Join(errs...)
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
