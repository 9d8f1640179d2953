package storage

import (
	"fmt"

	"avatarsync/pkg/s3"
)

type StorageFactory struct{}

func NewStorageFactory() *StorageFactory {
	return &StorageFactory{}
}

func (f *StorageFactory) CreateS3Backend(config *S3Config) (Backend, error) {
	if config == nil {
		return nil, fmt.Errorf("S3 configuration is required")
	}

	s3Client, err := s3.CreateS3Client(&s3.Config{
		Endpoint:   config.Endpoint,
		Region:     config.Region,
		Bucket:     config.Bucket,
		AccessKey:  config.AccessKey,
		SecretKey:  config.SecretKey,
		MaxRetries: config.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return NewS3Backend(s3Client, config), nil
}

func (f *StorageFactory) CreateSFTPBackend(config *SFTPConfig) (Backend, error) {
	if config == nil {
		return nil, fmt.Errorf("SFTP configuration is required")
	}

	backend, err := NewSFTPBackend(config)
	if err != nil {
		return nil, fmt.Errorf("create SFTP backend: %w", err)
	}

	return backend, nil
}
