package global

import (
	"fmt"
	"os"
	"strings"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"vhrealtime/logger"
	"vhrealtime/tools/ids"
)

// LoadConfig reads an optional .env file (ENV_FILE, default ".env") and then the
// process environment into an AppConfig.
func LoadConfig() (AppConfig, error) {
	file := os.Getenv("ENV_FILE")
	if file == "" {
		file = ".env"
	}
	if _, err := os.Stat(file); err == nil {
		if err := godotenv.Load(file); err != nil {
			return AppConfig{}, fmt.Errorf("load %s: %w", file, err)
		}
	}

	var cfg AppConfig
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints the env tags cannot express.
func (c AppConfig) Validate() error {
	switch c.MessageStore {
	case StorePostgres:
		if c.DatabaseUrl == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s message store", c.MessageStore)
		}
	case StoreMongo:
		if c.MongoUri == "" {
			return fmt.Errorf("MONGO_URI is required for the %s message store", c.MessageStore)
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the %s message store", c.MessageStore)
		}
	default:
		return fmt.Errorf("unknown MESSAGE_STORE %q (use postgres, mongo or redis)", c.MessageStore)
	}
	// users always live in the relational schema
	if c.DatabaseUrl == "" {
		return fmt.Errorf("DATABASE_URL is required for identity lookups")
	}
	if len(c.JwtSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 bytes")
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		return fmt.Errorf("PING_INTERVAL (%s) must be positive and shorter than PONG_WAIT (%s)", c.PingInterval, c.PongWait)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("SEND_QUEUE_SIZE must be positive")
	}
	return nil
}

// Origins splits AllowedOrigins; nil means every origin is allowed.
func (c AppConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		o = strings.TrimSpace(o)
		if o == "*" {
			return nil
		}
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ConfigAll applies the process-wide settings: log level and id node.
func ConfigAll(c AppConfig) error {
	if err := logger.SetLevel(c.LogLevel); err != nil {
		return err
	}
	ids.SetNodeID(c.NodeId)
	logger.Info("config applied")
	return nil
}
