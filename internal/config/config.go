package config

import (
	"os"

	"github.com/go-yaml/yaml"
)

type Config struct {
	Server Server `yaml:"server"`
}

type Server struct {
	Listen           string `yaml:"listen"`
	PostgresDsn      string `yaml:"postgresDsn"`
	RedisAddr        string `yaml:"redisAddr"`
	RedisPassword    string `yaml:"redisPassword"`
	RedisDB          int    `yaml:"redisDB"`
	MemcachedAddr    string `yaml:"memcachedAddr"`
	EnableTrace      bool   `yaml:"enableTrace"`
	TraceEndpoint    string `yaml:"traceEndpoint"`
	LinkedFieldsPath string `yaml:"linkedFieldsPath"` // empty uses the embedded table
	Concurrency      int    `yaml:"concurrency"`
	AnswerCacheTTL   int32  `yaml:"answerCacheTTL"` // seconds
}

func Default() Config {
	return Config{
		Server: Server{
			Listen:         ":8000",
			Concurrency:    4,
			AnswerCacheTTL: 300,
		},
	}
}

// Load reads path over the defaults.
func Load(path string) (Config, error) {

	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	config := Default()
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, err
	}

	return config, nil
}
