package internal

import "time"

// Config is the daemon configuration, loaded from the environment.
type Config struct {
	LogLevel string `env:"LOG_LEVEL,required=true"`

	PoolSize        int           `env:"POOL_SIZE,required=true"`
	JobBufferSize   int           `env:"JOB_BUFFER_SIZE,required=true"`
	EventBufferSize int           `env:"EVENT_BUFFER_SIZE,required=true"`
	SinkTimeout     time.Duration `env:"SINK_TIMEOUT,required=true"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,required=true"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,required=true"`

	BadgerFilepath string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string        `env:"BLUGE_FILEPATH,required=true"`
	CacheTTL       time.Duration `env:"CACHE_TTL,required=true"`

	SearchFlushSize    int           `env:"SEARCH_FLUSH_SIZE,required=true"`
	SearchFlushTimeout time.Duration `env:"SEARCH_FLUSH_TIMEOUT,required=true"`

	EnableBridges    bool   `env:"ENABLE_BRIDGES,required=true"`
	EasyOCRBinPath   string `env:"EASYOCR_BIN_PATH"`
	PaddleOCRBinPath string `env:"PADDLEOCR_BIN_PATH"`

	RedisURI         string `env:"REDIS_URI,required=true"`
	QueueConcurrency int    `env:"QUEUE_CONCURRENCY,required=true"`
}
