package config

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// EnvFileVar names the variable that points at an alternative .env file.
const EnvFileVar = "DOCTEXT_ENV_FILE"

var envOnce sync.Once

// loadEnv loads the .env file once per process. Variables already present in
// the environment win over the file.
func loadEnv() {
	envOnce.Do(func() {
		path := os.Getenv(EnvFileVar)
		if path == "" {
			path = ".env"
		}
		if _, err := os.Stat(path); err != nil {
			return
		}
		_ = godotenv.Load(path)
	})
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
