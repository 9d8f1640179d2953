package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Storage StorageConfig `mapstructure:"storage" validate:"required"`
	Upload  UploadConfig  `mapstructure:"upload" validate:"required"`
	Log     LogConfig     `mapstructure:"log" validate:"required"`
}

type StorageConfig struct {
	Type string      `mapstructure:"type" validate:"required,oneof=s3 sftp"`
	S3   *S3Config   `mapstructure:"s3"`
	SFTP *SFTPConfig `mapstructure:"sftp"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint" validate:"required,url"`
	Region    string `mapstructure:"region" validate:"required,min=1"`
	Bucket    string `mapstructure:"bucket" validate:"required,min=1"`
	AccessKey string `mapstructure:"access_key" validate:"required,min=1"`
	SecretKey string `mapstructure:"secret_key" validate:"required,min=1"`
	ACL       string `mapstructure:"acl"`

	MaxRetries           int  `mapstructure:"max_retries" validate:"min=0,max=10"`
	UploadTimeoutSeconds int  `mapstructure:"upload_timeout_seconds" validate:"min=1,max=100000"`
	EnableIntegrityCheck bool `mapstructure:"enable_integrity_check"`
}

type SFTPConfig struct {
	Host              string `mapstructure:"host" validate:"required"`
	Port              int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Username          string `mapstructure:"username" validate:"required"`
	Password          string `mapstructure:"password"`
	PrivateKey        string `mapstructure:"private_key"`
	BasePath          string `mapstructure:"base_path"`
	ConnectionTimeout int    `mapstructure:"connection_timeout" validate:"min=1,max=300"`
}

type UploadConfig struct {
	RetryCount        int    `mapstructure:"retry_count" validate:"required,min=1,max=10"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"min=0,max=60"`
	KeyPrefix         string `mapstructure:"key_prefix" validate:"required,min=1"`
	BatchSize         int    `mapstructure:"batch_size" validate:"required,min=1"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error fatal"`
}

// LoadFromFile reads the TOML config file, layering AVATARSYNC_* environment
// variables (and an optional .env file) over it.
func LoadFromFile(filename string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(filename)
	v.SetConfigType("toml")

	v.SetEnvPrefix("AVATARSYNC")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.type", "s3")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.acl", "public-read")
	v.SetDefault("storage.s3.max_retries", 3)
	v.SetDefault("storage.s3.upload_timeout_seconds", 10*60)
	v.SetDefault("storage.s3.enable_integrity_check", false)

	v.SetDefault("storage.sftp.port", 22)
	v.SetDefault("storage.sftp.connection_timeout", 30)

	v.SetDefault("upload.retry_count", 3)
	v.SetDefault("upload.retry_delay_seconds", 2)
	v.SetDefault("upload.key_prefix", "avatar")
	v.SetDefault("upload.batch_size", 100)

	v.SetDefault("log.level", "info")
}

func validateConfig(config *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())

	// Validate the main config structure excluding storage-specific fields
	if err := validate.StructExcept(config, "Storage.S3", "Storage.SFTP"); err != nil {
		return err
	}

	if err := validate.Var(config.Storage.Type, "required,oneof=s3 sftp"); err != nil {
		return err
	}

	// Conditionally validate storage configuration based on type
	switch config.Storage.Type {
	case "s3":
		if config.Storage.S3 == nil {
			return fmt.Errorf("s3 configuration is required when storage type is 's3'")
		}
		if err := validate.Struct(config.Storage.S3); err != nil {
			return err
		}
	case "sftp":
		if config.Storage.SFTP == nil {
			return fmt.Errorf("sftp configuration is required when storage type is 'sftp'")
		}
		if err := validate.Struct(config.Storage.SFTP); err != nil {
			return err
		}
	}

	return nil
}
