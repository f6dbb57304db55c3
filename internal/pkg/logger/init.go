package logger

import (
	"Horizon/internal/api/config"
	"io"
	log "log/slog"
	"net"
	"os"
	"time"
)

var LogWriter io.Writer

func InitLogger() {
	cfg := config.Cfg.Logstash

	hStdout := log.NewJSONHandler(os.Stdout, &log.HandlerOptions{Level: log.LevelInfo})

	var finalHandler log.Handler = hStdout
	LogWriter = os.Stdout

	// 未配置 logstash 时只输出到标准输出
	if cfg.Address == "" {
		log.SetDefault(log.New(&ContextHandler{finalHandler}))
		return
	}

	conn, err := net.DialTimeout("tcp", cfg.Address, 3*time.Second)
	if err == nil {
		hRemote := log.NewJSONHandler(conn, &log.HandlerOptions{Level: log.LevelInfo}).
			WithAttrs([]log.Attr{
				log.String("target_index", cfg.Index),
				log.String("log_token", cfg.Token),
			})

		finalHandler = NewTeeHandler(hStdout, NewRemoteFilterHandler(hRemote))

		LogWriter = conn
	} else {
		log.Warn("Failed to connect to Logstash, logging to stdout only", "err", err)
	}

	logger := log.New(&ContextHandler{finalHandler})
	log.SetDefault(logger)
}
