package config

import (
	"sync"
)

var (
	s3Once   sync.Once
	s3Config *S3Config
)

type S3Config struct {
	BucketName string
	Region     string
	Endpoint   string
	AccessKey  string
	SecretKey  string
}

func GetS3Config() *S3Config {
	s3Once.Do(func() {
		loadEnv()

		s3Config = &S3Config{
			BucketName: getString("AWS_S3_BUCKET_NAME", ""),
			Region:     getString("AWS_REGION", ""),
			Endpoint:   getString("AWS_ENDPOINT", ""),
			AccessKey:  getString("AWS_ACCESS_KEY", ""),
			SecretKey:  getString("AWS_SECRET_KEY", ""),
		}
	})
	return s3Config
}
