// Package archive stores exported statistics reports in S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

const (
	csvContentType      = "text/csv"
	defaultPresignedTTL = 24 * time.Hour
)

type Config struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Bucket       string
	UseSSL       bool
	PresignedTTL time.Duration
}

type Object struct {
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	DownloadURL string    `json:"download_url,omitempty"`
	ArchivedAt  time.Time `json:"archived_at"`
}

type Archiver interface {
	Archive(ctx context.Context, key string, body []byte) (Object, error)
}

type MinioArchiver struct {
	client       *minio.Client
	bucket       string
	presignedTTL time.Duration
}

// NewMinio connects to the object store and creates the bucket when it is missing.
func NewMinio(ctx context.Context, cfg Config) (*MinioArchiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		log.WithField("bucket", cfg.Bucket).Info("created report bucket")
	}

	ttl := cfg.PresignedTTL
	if ttl <= 0 {
		ttl = defaultPresignedTTL
	}
	return &MinioArchiver{client: client, bucket: cfg.Bucket, presignedTTL: ttl}, nil
}

func (a *MinioArchiver) Archive(ctx context.Context, key string, body []byte) (Object, error) {
	info, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: csvContentType})
	if err != nil {
		return Object{}, fmt.Errorf("put %s: %w", key, err)
	}

	obj := Object{Bucket: a.bucket, Key: key, Size: info.Size, ArchivedAt: time.Now().UTC()}
	presigned, err := a.client.PresignedGetObject(ctx, a.bucket, key, a.presignedTTL, url.Values{})
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("presign report download failed")
		return obj, nil
	}
	obj.DownloadURL = presigned.String()
	return obj, nil
}

// Ping reports whether the object store answers.
func (a *MinioArchiver) Ping(ctx context.Context) error {
	_, err := a.client.BucketExists(ctx, a.bucket)
	return err
}

var unsafeKeyChars = regexp.MustCompile(`[^a-z0-9_-]+`)

// ReportKey names an archived report: reports/<yyyy>/<mm>/stats-<period>-<staff>-<timestamp>.csv.
func ReportKey(period, staff string, at time.Time) string {
	at = at.UTC()
	staffPart := unsafeKeyChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(staff)), "-")
	staffPart = strings.Trim(staffPart, "-")
	if staffPart == "" {
		staffPart = "all"
	}
	return fmt.Sprintf("reports/%04d/%02d/stats-%s-%s-%s.csv",
		at.Year(), int(at.Month()), period, staffPart, at.Format("20060102T150405Z"))
}
