package storage

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// stripedLock provides a set of locks for concurrent access to different keys.
// This avoids holding a global lock or having a map of locks that grows indefinitely.
type stripedLock struct {
	locks []sync.Mutex
}

func newStripedLock(count int) *stripedLock {
	if count <= 0 {
		count = 1024
	}
	return &stripedLock{
		locks: make([]sync.Mutex, count),
	}
}

func (sl *stripedLock) Lock(key string) {
	h := xxhash.Sum64String(key)
	sl.locks[h%uint64(len(sl.locks))].Lock()
}

func (sl *stripedLock) Unlock(key string) {
	h := xxhash.Sum64String(key)
	sl.locks[h%uint64(len(sl.locks))].Unlock()
}

// sftpClientInterface covers the subset of *sftp.Client the backend uses,
// so tests can substitute a mock.
type sftpClientInterface interface {
	Stat(p string) (os.FileInfo, error)
	MkdirAll(path string) error
	Create(path string) (io.WriteCloser, error)
	Rename(oldname, newname string) error
	Remove(path string) error
	Close() error
}

type sftpClientAdapter struct {
	*sftp.Client
}

func (a *sftpClientAdapter) Create(path string) (io.WriteCloser, error) {
	return a.Client.Create(path)
}

type SFTPBackend struct {
	client   sftpClientInterface
	sshConn  *ssh.Client
	config   *SFTPConfig
	basePath string
	locks    *stripedLock
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

func NewSFTPBackend(config *SFTPConfig) (*SFTPBackend, error) {
	sshConfig, err := buildSSHConfig(config)
	if err != nil {
		return nil, fmt.Errorf("build ssh config: %w", err)
	}

	addr := net.JoinHostPort(config.Host, fmt.Sprintf("%d", config.Port))
	sshConn, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, &StorageError{
			Type:    ErrorTypeNetworkError,
			Message: "failed to connect to SFTP server",
			Cause:   err,
		}
	}

	sftpClient, err := sftp.NewClient(sshConn)
	if err != nil {
		_ = sshConn.Close()
		return nil, &StorageError{
			Type:    ErrorTypeNetworkError,
			Message: "failed to create SFTP client",
			Cause:   err,
		}
	}

	return &SFTPBackend{
		client:   &sftpClientAdapter{sftpClient},
		sshConn:  sshConn,
		config:   config,
		basePath: config.BasePath,
		locks:    newStripedLock(1024),
	}, nil
}

func buildSSHConfig(config *SFTPConfig) (*ssh.ClientConfig, error) {
	authMethods := []ssh.AuthMethod{}

	if config.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(config.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if config.Password != "" {
		authMethods = append(authMethods, ssh.Password(config.Password))
	}

	if len(authMethods) == 0 {
		return nil, fmt.Errorf("either password or private_key must be set")
	}

	return &ssh.ClientConfig{
		User:            config.Username,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         time.Duration(config.ConnectionTimeout) * time.Second,
	}, nil
}

func (s *SFTPBackend) remotePath(key string) string {
	if s.basePath == "" {
		return key
	}
	return path.Join(s.basePath, key)
}

func (s *SFTPBackend) CheckFileExists(ctx context.Context, key string) (*FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StorageError{
			Type:    ErrorTypeNetworkError,
			Message: "context cancelled",
			Cause:   err,
		}
	}

	info, err := s.client.Stat(s.remotePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return &FileMetadata{Exists: false}, nil
		}
		if os.IsPermission(err) {
			return nil, &StorageError{
				Type:    ErrorTypeAccessDenied,
				Message: "access denied to check file",
				Cause:   err,
			}
		}
		return nil, &StorageError{
			Type:    ErrorTypeNetworkError,
			Message: "failed to check file existence",
			Cause:   err,
		}
	}

	return &FileMetadata{
		Exists:       true,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

func (s *SFTPBackend) UploadFile(ctx context.Context, filePath, key string, opts *UploadOptions) error {
	file, err := os.Open(filePath)
	if err != nil {
		return &StorageError{
			Type:    ErrorTypeInvalidInput,
			Message: "failed to open file",
			Cause:   err,
		}
	}
	defer func() {
		_ = file.Close()
	}()

	return s.UploadFromReader(ctx, file, key, opts)
}

// UploadFromReader writes the payload to a hidden temp file next to the final
// path and renames it into place, so readers never observe a partial object.
func (s *SFTPBackend) UploadFromReader(ctx context.Context, reader io.Reader, key string, opts *UploadOptions) error {
	if err := ctx.Err(); err != nil {
		return &StorageError{
			Type:    ErrorTypeNetworkError,
			Message: "context cancelled",
			Cause:   err,
		}
	}

	finalPath := s.remotePath(key)

	s.locks.Lock(finalPath)
	defer s.locks.Unlock(finalPath)

	tempName := fmt.Sprintf(".%s.%016x", path.Base(finalPath), xxhash.Sum64String(finalPath))
	tempPath := path.Join(path.Dir(finalPath), tempName)

	if err := s.client.MkdirAll(path.Dir(finalPath)); err != nil {
		return &StorageError{
			Type:    ErrorTypeInternal,
			Message: "failed to create remote directory",
			Cause:   err,
		}
	}

	remote, err := s.client.Create(tempPath)
	if err != nil {
		return s.convertSFTPError(err, "failed to create remote temp file")
	}

	if _, err := io.Copy(remote, reader); err != nil {
		_ = remote.Close()
		_ = s.client.Remove(tempPath)
		return s.convertSFTPError(err, "failed to write remote file")
	}

	if err := remote.Close(); err != nil {
		_ = s.client.Remove(tempPath)
		return s.convertSFTPError(err, "failed to close remote file")
	}

	if err := s.client.Rename(tempPath, finalPath); err != nil {
		_ = s.client.Remove(tempPath)
		return s.convertSFTPError(err, "failed to rename remote file")
	}

	return nil
}

func (s *SFTPBackend) GetBackendType() BackendType {
	return BackendTypeSFTP
}

func (s *SFTPBackend) Close() error {
	var firstErr error
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			firstErr = err
		}
	}
	if s.sshConn != nil {
		if err := s.sshConn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *SFTPBackend) convertSFTPError(err error, message string) error {
	if err == nil {
		return nil
	}
	if os.IsPermission(err) {
		return &StorageError{
			Type:    ErrorTypeAccessDenied,
			Message: message,
			Cause:   err,
		}
	}
	return &StorageError{
		Type:    ErrorTypeNetworkError,
		Message: message,
		Cause:   err,
	}
}
