package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"avatarsync/pkg/config"
	"avatarsync/pkg/logger"
	"avatarsync/pkg/pipeline"
	"avatarsync/pkg/storage"
)

func main() {
	var (
		configPath     = flag.String("config", "config.toml", "path to config file")
		workers        = flag.Int("workers", 1, "number of concurrent upload workers (1 = sequential)")
		batchSize      = flag.Int("batch-size", 0, "files per batch when running concurrently (default from config)")
		prefix         = flag.String("prefix", "", "key prefix in the bucket (default from config)")
		noSkipExisting = flag.Bool("no-skip-existing", false, "upload files even if both variants already exist")
		debug          = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <directory>\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	log := logger.NewDefault()

	scanRoot := flag.Arg(0)
	if scanRoot == "" {
		flag.Usage()
		log.Fatal("scan directory is required", nil)
	}
	if *workers < 1 {
		log.Fatal("workers must be at least 1", map[string]any{
			"workers": *workers,
		})
	}
	if *workers > 50 {
		log.Warn("using more than 50 workers may cause rate limiting or connection issues", map[string]any{
			"workers": *workers,
		})
	}

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		log.Fatal("failed to load config", map[string]any{
			"config_path": *configPath,
			"error":       err.Error(),
		})
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatal("invalid log level", map[string]any{
			"level": cfg.Log.Level,
		})
	}
	if *debug {
		level = logger.LevelDebug
	}
	log.SetLevel(level)

	backend, err := createBackend(cfg)
	if err != nil {
		log.Fatal("failed to create storage backend", map[string]any{
			"storage_type": cfg.Storage.Type,
			"error":        err.Error(),
		})
	}
	defer func() {
		_ = backend.Close()
	}()

	keyPrefix := *prefix
	if keyPrefix == "" {
		keyPrefix = cfg.Upload.KeyPrefix
	}
	size := *batchSize
	if size <= 0 {
		size = cfg.Upload.BatchSize
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipe := pipeline.New(backend, log, pipeline.Options{
		ScanRoot:     scanRoot,
		KeyPrefix:    keyPrefix,
		SkipExisting: !*noSkipExisting,
		Workers:      *workers,
		BatchSize:    size,
		RetryCount:   cfg.Upload.RetryCount,
		RetryDelay:   time.Duration(cfg.Upload.RetryDelaySeconds) * time.Second,
	})

	if err := pipe.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("upload interrupted by user", nil)
			return
		}
		log.Fatal("upload run failed", map[string]any{
			"error": err.Error(),
		})
	}
}

func createBackend(cfg *config.Config) (storage.Backend, error) {
	factory := storage.NewStorageFactory()

	switch cfg.Storage.Type {
	case "s3":
		if cfg.Storage.S3 == nil {
			return nil, fmt.Errorf("S3 configuration is required when storage.type is 's3'")
		}
		return factory.CreateS3Backend(&storage.S3Config{
			Endpoint:             cfg.Storage.S3.Endpoint,
			Region:               cfg.Storage.S3.Region,
			Bucket:               cfg.Storage.S3.Bucket,
			AccessKey:            cfg.Storage.S3.AccessKey,
			SecretKey:            cfg.Storage.S3.SecretKey,
			ACL:                  cfg.Storage.S3.ACL,
			MaxRetries:           cfg.Storage.S3.MaxRetries,
			UploadTimeoutSeconds: cfg.Storage.S3.UploadTimeoutSeconds,
			EnableIntegrityCheck: cfg.Storage.S3.EnableIntegrityCheck,
		})
	case "sftp":
		if cfg.Storage.SFTP == nil {
			return nil, fmt.Errorf("SFTP configuration is required when storage.type is 'sftp'")
		}
		return factory.CreateSFTPBackend(&storage.SFTPConfig{
			Host:              cfg.Storage.SFTP.Host,
			Port:              cfg.Storage.SFTP.Port,
			Username:          cfg.Storage.SFTP.Username,
			Password:          cfg.Storage.SFTP.Password,
			PrivateKey:        cfg.Storage.SFTP.PrivateKey,
			BasePath:          cfg.Storage.SFTP.BasePath,
			ConnectionTimeout: cfg.Storage.SFTP.ConnectionTimeout,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}
