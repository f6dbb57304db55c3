package config

import (
	"strings"
	"time"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// Config 配置主体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	DB       DBConfig       `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Elastic  ElasticConfig  `mapstructure:"elastic"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Security SecurityConfig `mapstructure:"security"`
	Logstash LogstashConfig `mapstructure:"logstash"`
}

// ServerConfig Server配置
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DBConfig 数据库配置
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxIdle     int    `mapstructure:"max_idle"`
	MaxOpen     int    `mapstructure:"max_open"`
	MaxLifetime int    `mapstructure:"max_lifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MongoConfig struct {
	URL      string `mapstructure:"url"`
	Database string `mapstructure:"database"`
}

// MinIOConfig MinIO配置
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	AccessKey        string `mapstructure:"access_key"`
	SecretKey        string `mapstructure:"secret_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	TranscriptBucket string `mapstructure:"transcript_bucket"`
	TranscriptPrefix string `mapstructure:"transcript_prefix"`
	PresignMinutes   int    `mapstructure:"presign_minutes"`
}

// ElasticConfig Elastic配置
type ElasticConfig struct {
	Address  string         `mapstructure:"address"`
	Username string         `mapstructure:"username"`
	Password string         `mapstructure:"password"`
	Indices  ElasticIndices `mapstructure:"indices"`
}

type ElasticIndices struct {
	ChatIndex string `mapstructure:"chat_index"`
}

type KafkaConfig struct {
	Enable           bool           `mapstructure:"enable"`
	Brokers          []string       `mapstructure:"brokers"`
	Sasl             SaslConfig     `mapstructure:"sasl"`
	Consumer         ConsumerConfig `mapstructure:"consumer"`
	ChatTopic        string         `mapstructure:"chat_topic"`
	ChatArchiveGroup string         `mapstructure:"chat_archive_group"`
}

type SaslConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type ConsumerConfig struct {
	SessionTimeout    int `mapstructure:"session_timeout"`
	HeartbeatInterval int `mapstructure:"heartbeat_interval"`
	RebalanceTimeout  int `mapstructure:"rebalance_timeout"`
	MaxProcessingTime int `mapstructure:"max_processing_time"`
}

// ChatConfig 在线客服相关配置
type ChatConfig struct {
	LockTTLSeconds int       `mapstructure:"lock_ttl_seconds"`
	ContextCookie  string    `mapstructure:"context_cookie"`
	StorageTTLDays int       `mapstructure:"storage_ttl_days"`
	ArchiveCron    string    `mapstructure:"archive_cron"`
	WebhookURL     string    `mapstructure:"webhook_url"`
	AdminSeed      AdminSeed `mapstructure:"admin_seed"`
}

// AdminSeed is created on startup when no admin with that username exists.
type AdminSeed struct {
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	DisplayName string `mapstructure:"display_name"`
}

type SecurityConfig struct {
	JWTSecret     string `mapstructure:"jwt_secret"`
	JWTExpireHour int    `mapstructure:"jwt_expire_hour"`
}

type LogstashConfig struct {
	Address string `mapstructure:"address"`
	Index   string `mapstructure:"index"`
	Token   string `mapstructure:"token"`
}

func (c ChatConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c ChatConfig) StorageTTL() time.Duration {
	return time.Duration(c.StorageTTLDays) * 24 * time.Hour
}
