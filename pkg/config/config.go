package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Server     struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Minio struct {
		Endpoint     string `mapstructure:"ENDPOINT"`
		AccessKey    string `mapstructure:"ACCESS_KEY"`
		SecretKey    string `mapstructure:"SECRET_KEY"`
		Secure       bool   `mapstructure:"SECURE"`
		BucketName   string `mapstructure:"BUCKET_NAME"`
		PublicDomain string `mapstructure:"PUBLIC_DOMAIN"`
	} `mapstructure:"MINIO"`
	Telegram struct {
		Token            string `mapstructure:"TOKEN"`
		ChatID           int64  `mapstructure:"CHAT_ID"`
		WebhookSecret    string `mapstructure:"WEBHOOK_SECRET"`
		MaxParallelSends int64  `mapstructure:"MAX_PARALLEL_SENDS"`
		BotDescription   string `mapstructure:"BOT_DESCRIPTION"`
		MiniAppURL       string `mapstructure:"MINI_APP_URL"`
	} `mapstructure:"TELEGRAM"`
	Media struct {
		WorkDir       string `mapstructure:"WORK_DIR"`
		FFmpegBin     string `mapstructure:"FFMPEG_BIN"`
		TapSoundPath  string `mapstructure:"TAP_SOUND_PATH"`
		VideoEnabled  bool   `mapstructure:"VIDEO_ENABLED"`
		UploadRetries int    `mapstructure:"UPLOAD_RETRIES"`
	} `mapstructure:"MEDIA"`
	Social struct {
		SessionDir        string        `mapstructure:"SESSION_DIR"`
		RecoveryThreshold time.Duration `mapstructure:"RECOVERY_THRESHOLD"`
		JanitorInterval   time.Duration `mapstructure:"JANITOR_INTERVAL"`
		BrowserTimeout    time.Duration `mapstructure:"BROWSER_TIMEOUT"`
		HTTPTimeout       time.Duration `mapstructure:"HTTP_TIMEOUT"`
		DefaultLink       string        `mapstructure:"DEFAULT_LINK"`
		SkipIntermediate  bool          `mapstructure:"SKIP_INTERMEDIATE_STEPS"`
	} `mapstructure:"SOCIAL"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {
	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			zap.L().Error("failed to read config file", zap.Error(err))
			os.Exit(1)
		}
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	applyDefaults(&cfg)

	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Telegram.MaxParallelSends == 0 {
		cfg.Telegram.MaxParallelSends = 4
	}
	if cfg.Media.WorkDir == "" {
		cfg.Media.WorkDir = os.TempDir()
	}
	if cfg.Media.FFmpegBin == "" {
		cfg.Media.FFmpegBin = "ffmpeg"
	}
	if cfg.Media.UploadRetries == 0 {
		cfg.Media.UploadRetries = 5
	}
	if cfg.Social.SessionDir == "" {
		cfg.Social.SessionDir = "sessions"
	}
	if cfg.Social.RecoveryThreshold == 0 {
		cfg.Social.RecoveryThreshold = 15 * time.Minute
	}
	if cfg.Social.JanitorInterval == 0 {
		cfg.Social.JanitorInterval = time.Minute
	}
	if cfg.Social.BrowserTimeout == 0 {
		cfg.Social.BrowserTimeout = 3 * time.Minute
	}
	if cfg.Social.HTTPTimeout == 0 {
		cfg.Social.HTTPTimeout = 30 * time.Second
	}
}
