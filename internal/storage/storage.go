// Package storage archives completed audio files to S3-compatible object
// storage (MinIO or AWS S3).
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/openmusicplayer/bilimusic/internal/config"
	apperrors "github.com/openmusicplayer/bilimusic/internal/errors"
	"github.com/openmusicplayer/bilimusic/internal/logger"
)

// DefaultRegion is used for MinIO, which ignores it
const DefaultRegion = "us-east-1"

// Config holds the connection settings shared by both clients.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

// FromAppConfig extracts the storage settings from the application config.
func FromAppConfig(cfg *config.Config) *Config {
	return &Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
		Region:    DefaultRegion,
	}
}

// hostPort strips any scheme; minio-go expects host:port
func (c *Config) hostPort() string {
	endpoint := strings.TrimPrefix(c.Endpoint, "http://")
	return strings.TrimPrefix(endpoint, "https://")
}

// baseURL returns the endpoint with a scheme, as the AWS SDK expects
func (c *Config) baseURL() string {
	if strings.HasPrefix(c.Endpoint, "http://") || strings.HasPrefix(c.Endpoint, "https://") {
		return c.Endpoint
	}
	if c.UseSSL {
		return "https://" + c.Endpoint
	}
	return "http://" + c.Endpoint
}

// ============================================================================
// Admin client (minio-go): bucket provisioning and health checks
// ============================================================================

// Client provides bucket-level access to S3-compatible object storage.
type Client struct {
	client *minio.Client
	bucket string
}

// New creates a new admin storage client.
func New(cfg *Config) (*Client, error) {
	client, err := minio.New(cfg.hostPort(), &minio.Options{
		Creds:  miniocreds.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Client{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", c.bucket, err)
		}
	}

	return nil
}

// Bucket returns the bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// Ping checks if the storage is accessible by verifying bucket exists.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.client.BucketExists(ctx, c.bucket)
	return err
}

// ============================================================================
// Archive (aws-sdk-go-v2): uploads with deduplication
// ============================================================================

// TrackMetadata contains the metadata used for identity hash generation
type TrackMetadata struct {
	SourceID        string `json:"source_id,omitempty"`
	Title           string `json:"title"`
	Artist          string `json:"artist,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	SourceURL       string `json:"source_url,omitempty"`
}

// UploadResult contains the result of an upload operation
type UploadResult struct {
	StorageKey   string `json:"storage_key"`
	IdentityHash string `json:"identity_hash"`
	IsNew        bool   `json:"is_new"` // false if file already existed (deduplicated)
}

// Archiver stores a copy of a finished audio file. The local file is left
// in place.
type Archiver interface {
	Archive(ctx context.Context, filePath string, metadata TrackMetadata) (*UploadResult, error)
}

// S3Storage implements Archiver using S3-compatible storage (AWS S3 or MinIO)
type S3Storage struct {
	client *s3.Client
	bucket string
	log    *logger.Logger
}

var _ Archiver = (*S3Storage)(nil)

// NewS3Storage creates a new S3Storage instance
func NewS3Storage(cfg *Config) *S3Storage {
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}

	client := s3.New(s3.Options{
		Region:       region,
		Credentials:  awscreds.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true, // Required for MinIO
		BaseEndpoint: aws.String(cfg.baseURL()),
	})

	return &S3Storage{
		client: client,
		bucket: cfg.Bucket,
		log:    logger.Default().WithComponent("storage"),
	}
}

// GenerateIdentityHash creates a unique hash for track deduplication.
// The source ID wins when known; otherwise normalized title, artist and
// duration are used.
func GenerateIdentityHash(metadata TrackMetadata) string {
	var hashInput string
	if metadata.SourceID != "" {
		hashInput = "id|" + metadata.SourceID
	} else {
		normalizedTitle := strings.ToLower(strings.TrimSpace(metadata.Title))
		normalizedArtist := strings.ToLower(strings.TrimSpace(metadata.Artist))
		hashInput = fmt.Sprintf("%s|%s|%d", normalizedTitle, normalizedArtist, metadata.DurationSeconds)
	}

	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

var contentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".webm": "audio/webm",
	".wav":  "audio/wav",
}

func contentTypeFor(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// storageKey returns the S3 key for a given identity hash and extension
func storageKey(identityHash, ext string) string {
	return fmt.Sprintf("audio/%s/audio%s", identityHash, strings.ToLower(ext))
}

// metadataKey returns the S3 key for metadata JSON
func metadataKey(identityHash string) string {
	return fmt.Sprintf("audio/%s/metadata.json", identityHash)
}

// Archive uploads an audio file to S3 with deduplication
func (s *S3Storage) Archive(ctx context.Context, filePath string, metadata TrackMetadata) (*UploadResult, error) {
	identityHash := GenerateIdentityHash(metadata)
	audioKey := storageKey(identityHash, filepath.Ext(filePath))

	exists, err := s.exists(ctx, audioKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check existence: %w", err)
	}

	if exists {
		return &UploadResult{
			StorageKey:   audioKey,
			IdentityHash: identityHash,
			IsNew:        false,
		}, nil
	}

	err = apperrors.Retry(ctx, apperrors.StorageRetryConfig(), func(ctx context.Context) error {
		return s.putFile(ctx, audioKey, filePath)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload audio: %w", err)
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(metadataKey(identityHash)),
		Body:        strings.NewReader(string(metadataJSON)),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		// Try to clean up the audio file if metadata upload fails
		_ = s.delete(ctx, audioKey)
		return nil, fmt.Errorf("failed to upload metadata: %w", err)
	}

	s.log.Info(ctx, "archived audio", map[string]interface{}{"key": audioKey, "path": filePath})
	return &UploadResult{
		StorageKey:   audioKey,
		IdentityHash: identityHash,
		IsNew:        true,
	}, nil
}

func (s *S3Storage) putFile(ctx context.Context, key, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(fileInfo.Size()),
		ContentType:   aws.String(contentTypeFor(filePath)),
	})
	return err
}

// exists checks if an object exists in S3
func (s *S3Storage) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// isNotFound checks if the error indicates the object was not found
func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

func (s *S3Storage) delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
