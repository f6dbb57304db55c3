package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Cfg 全局可访问的配置实例
var Cfg *Config

// LoadConfig reads configs/config.yaml into Cfg. Environment variables
// prefixed with HORIZON_ override file values (HORIZON_MONGO_URL, ...).
func LoadConfig() error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.SetEnvPrefix("horizon")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	Cfg = &cfg
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("mongo.database", "horizon")
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("chat.lock_ttl_seconds", 5)
	v.SetDefault("chat.context_cookie", "chat_ctx")
	v.SetDefault("chat.storage_ttl_days", 365)
	v.SetDefault("chat.archive_cron", "0 30 3 * * *")
	v.SetDefault("kafka.chat_topic", "chat-events")
	v.SetDefault("kafka.chat_archive_group", "chat-archive")
	v.SetDefault("elastic.indices.chat_index", "chat_messages")
	v.SetDefault("minio.transcript_prefix", "transcripts/")
	v.SetDefault("minio.presign_minutes", 30)
}
