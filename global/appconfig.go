package global

import "time"

const ServiceName = "Virtual Hospital Realtime"

// Message store backends.
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreRedis    = "redis"
)

// AppConfig is the whole process configuration, read from the environment.
type AppConfig struct {
	NodeId   int64  `env:"NODE_ID,default=1"` // snowflake node for connection ids
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=8001"`
	GrpcPort int    `env:"GRPC_PORT,default=50052"` // 0 disables the gRPC health service
	LogLevel string `env:"LOG_LEVEL,default=info"`

	JwtSecret string        `env:"JWT_SECRET,required=true"`
	JwtAlg    string        `env:"JWT_ALG,default=HS256"`
	JwtTTL    time.Duration `env:"JWT_TTL,default=168h"`

	MessageStore string `env:"MESSAGE_STORE,default=postgres"`
	DatabaseUrl  string `env:"DATABASE_URL"`
	MongoUri     string `env:"MONGO_URI"`
	MongoDB      string `env:"MONGO_DATABASE,default=virtual_hospital"`

	RedisAddr         string        `env:"REDIS_ADDR"`
	RedisPassword     string        `env:"REDIS_PASSWORD"`
	RedisDB           int           `env:"REDIS_DB,default=0"`
	RedisPoolSize     int           `env:"REDIS_POOL_SIZE,default=20"`
	IdentityCacheTTL  time.Duration `env:"IDENTITY_CACHE_TTL,default=1m"` // 0 disables the cache
	RedisStreamMaxLen int64         `env:"REDIS_STREAM_MAXLEN,default=0"` // 0 keeps every message

	NatsUrl       string `env:"NATS_URL"`
	NatsSubject   string `env:"NATS_SUBJECT,default=vh.chat.message.created"`
	NatsJetStream bool   `env:"NATS_JETSTREAM,default=false"`
	NatsQueueSize int    `env:"NATS_QUEUE_SIZE,default=1024"`

	PersistTimeout  time.Duration `env:"PERSIST_TIMEOUT,default=3s"`
	SendQueueSize   int           `env:"SEND_QUEUE_SIZE,default=256"`
	WriteWait       time.Duration `env:"WRITE_WAIT,default=5s"`
	PongWait        time.Duration `env:"PONG_WAIT,default=60s"`
	PingInterval    time.Duration `env:"PING_INTERVAL,default=50s"`
	MaxMessageBytes int64         `env:"MAX_MESSAGE_BYTES,default=65536"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS,default=*"` // comma separated, * allows all
	TimestampLayout string        `env:"TIMESTAMP_LAYOUT,default=03:04 PM"`
}
