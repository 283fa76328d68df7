package config

type Config interface {
	EnvConfig
	CorsConfig
	SessionConfig
	RedisConfig
	PostgresConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Session
	Redis
	Postgres
}

func New() Config {
	return mainConfig{}
}
