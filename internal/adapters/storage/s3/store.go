// Package s3 implementa storage.Storage sobre S3 (o MinIO) con URLs GET prefirmadas.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"pet-health-sync/internal/ports/storage"
)

const (
	DefaultURLTTL = 15 * time.Minute

	maxUpload = 64 << 20
)

var (
	ErrBucketRequired = errors.New("s3 bucket required")
	ErrTooLarge       = errors.New("blob exceeds upload limit")
	ErrInvalidPath    = errors.New("invalid storage path")
)

type Config struct {
	Bucket   string
	Region   string // default us-east-1
	Endpoint string // opcional (MinIO, localstack)

	// Si están vacías se usa la cadena de credenciales por defecto de AWS.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	PathStyle bool
	URLTTL    time.Duration

	HTTPClient *http.Client // tests
}

type Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
}

var _ storage.Storage = (*Store)(nil)

func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, ErrBucketRequired
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
	})

	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	return &Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		ttl:     ttl,
	}, nil
}

// Upload guarda el blob bajo <pathHint>/<uuid><ext> y devuelve el path y una URL firmada.
func (s *Store) Upload(ctx context.Context, blob io.Reader, pathHint, contentType string) (storage.Object, error) {
	key, err := ObjectKey(pathHint, contentType)
	if err != nil {
		return storage.Object{}, err
	}

	// el SDK necesita un body seekable para firmar el payload
	data, err := io.ReadAll(io.LimitReader(blob, maxUpload+1))
	if err != nil {
		return storage.Object{}, fmt.Errorf("read blob: %w", err)
	}
	if len(data) > maxUpload {
		return storage.Object{}, ErrTooLarge
	}

	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return storage.Object{}, fmt.Errorf("put object %s: %w", key, err)
	}

	u, err := s.AccessURL(ctx, key)
	if err != nil {
		return storage.Object{}, err
	}
	return storage.Object{Path: key, URL: u}, nil
}

func (s *Store) AccessURL(ctx context.Context, storedPath string) (string, error) {
	key := strings.TrimPrefix(strings.TrimSpace(storedPath), "/")
	if key == "" {
		return "", ErrInvalidPath
	}
	out, err := s.presign.PresignGetObject(ctx,
		&s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)},
		func(po *s3.PresignOptions) { po.Expires = s.ttl },
	)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return out.URL, nil
}

// Delete es idempotente: S3 responde 204 aunque la key no exista.
func (s *Store) Delete(ctx context.Context, storedPath string) error {
	key := strings.TrimPrefix(strings.TrimSpace(storedPath), "/")
	if key == "" {
		return ErrInvalidPath
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// ObjectKey arma la key final a partir del hint del caller. No permite salir del prefijo con "..".
func ObjectKey(pathHint, contentType string) (string, error) {
	hint := strings.Trim(strings.TrimSpace(pathHint), "/")
	if hint == "" {
		hint = "media"
	}
	for _, part := range strings.Split(hint, "/") {
		if part == ".." {
			return "", ErrInvalidPath
		}
	}
	hint = path.Clean(hint)

	ext := path.Ext(hint)
	if ext != "" {
		hint = strings.TrimSuffix(hint, ext)
	} else if contentType != "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	return hint + "/" + uuid.NewString() + ext, nil
}
