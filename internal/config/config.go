package config

import (
	"log"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	IsDebug  bool   `yaml:"is_debug" env:"EVCS_DEBUG" env-default:"false"`
	TimeZone string `yaml:"time_zone" env:"EVCS_TIME_ZONE" env-default:"UTC"`
	Listen   struct {
		BindIP       string        `yaml:"bind_ip" env:"EVCS_LISTEN_IP" env-default:"0.0.0.0"`
		Port         string        `yaml:"port" env:"EVCS_LISTEN_PORT" env-default:"9000"`
		TLS          bool          `yaml:"tls_enabled" env-default:"false"`
		CertFile     string        `yaml:"cert_file" env-default:""`
		KeyFile      string        `yaml:"key_file" env-default:""`
		PingInterval time.Duration `yaml:"ping_interval" env-default:"30s"`
	} `yaml:"listen"`
	Api struct {
		Enabled   bool    `yaml:"enabled" env-default:"true"`
		BindIP    string  `yaml:"bind_ip" env:"EVCS_API_IP" env-default:"0.0.0.0"`
		Port      string  `yaml:"port" env:"EVCS_API_PORT" env-default:"9001"`
		TLS       bool    `yaml:"tls_enabled" env-default:"false"`
		CertFile  string  `yaml:"cert_file" env-default:""`
		KeyFile   string  `yaml:"key_file" env-default:""`
		RateLimit float64 `yaml:"rate_limit" env-default:"5"`
		Burst     int     `yaml:"burst" env-default:"10"`
	} `yaml:"api"`
	Remote struct {
		Timeout time.Duration `yaml:"timeout" env:"EVCS_REMOTE_TIMEOUT" env-default:"30s"`
	} `yaml:"remote"`
	Auth struct {
		// AcceptUnknownTag accepts id tags that match no user; disable in production
		AcceptUnknownTag bool          `yaml:"accept_unknown_tag" env:"EVCS_ACCEPT_UNKNOWN_TAG" env-default:"true"`
		CacheTTL         time.Duration `yaml:"cache_ttl" env-default:"1m"`
	} `yaml:"auth"`
	Log struct {
		Level      string `yaml:"level" env:"EVCS_LOG_LEVEL" env-default:"info"`
		Format     string `yaml:"format" env-default:"console"`
		File       string `yaml:"file" env-default:""`
		MaxSize    int    `yaml:"max_size" env-default:"100"`
		MaxBackups int    `yaml:"max_backups" env-default:"5"`
		MaxAge     int    `yaml:"max_age" env-default:"30"`
		Compress   bool   `yaml:"compress" env-default:"true"`
	} `yaml:"log"`
	Database struct {
		Driver string `yaml:"driver" env:"EVCS_DB_DRIVER" env-default:"memory"`
	} `yaml:"database"`
	Mongo struct {
		Host     string `yaml:"host" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env-default:"27017"`
		User     string `yaml:"user" env-default:""`
		Password string `yaml:"password" env-default:""`
		Database string `yaml:"database" env-default:"evcs"`
	} `yaml:"mongo"`
	Sql struct {
		Dsn string `yaml:"dsn" env:"EVCS_SQL_DSN" env-default:""`
	} `yaml:"sql"`
	Redis struct {
		Enabled   bool   `yaml:"enabled" env-default:"false"`
		Addr      string `yaml:"addr" env:"EVCS_REDIS_ADDR" env-default:"127.0.0.1:6379"`
		Password  string `yaml:"password" env-default:""`
		DB        int    `yaml:"db" env-default:"0"`
		KeyPrefix string `yaml:"key_prefix" env-default:"evcs:queue:"`
	} `yaml:"redis"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		BindIP  string `yaml:"bind_ip" env-default:"0.0.0.0"`
		Port    string `yaml:"port" env-default:"9090"`
	} `yaml:"metrics"`
	Telegram struct {
		Enabled bool    `yaml:"enabled" env-default:"false"`
		Token   string  `yaml:"token" env:"EVCS_TELEGRAM_TOKEN" env-default:""`
		ChatIds []int64 `yaml:"chat_ids"`
	} `yaml:"telegram"`
}

var instance *Config
var once sync.Once

func GetConfig(path string) (*Config, error) {
	var err error
	once.Do(func() {
		log.Println("reading config from", path)
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			log.Println(desc)
			instance = nil
		}
	})
	return instance, err
}

// Default returns a configuration filled from env-default tags and the environment only
func Default() (*Config, error) {
	conf := &Config{}
	if err := cleanenv.ReadEnv(conf); err != nil {
		return nil, err
	}
	return conf, nil
}
