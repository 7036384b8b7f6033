package config

import (
	"sync"
)

var (
	textractOnce   sync.Once
	textractConfig *TextractConfig
)

type TextractConfig struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

func GetTextractConfig() *TextractConfig {
	textractOnce.Do(func() {
		loadEnv()

		textractConfig = &TextractConfig{
			Region:    getString("AWS_REGION", "us-east-1"),
			Endpoint:  getString("AWS_ENDPOINT", ""),
			AccessKey: getString("AWS_ACCESS_KEY", ""),
			SecretKey: getString("AWS_SECRET_KEY", ""),
		}
	})
	return textractConfig
}
