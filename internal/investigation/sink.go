package investigation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ppiankov/lupa/internal/model"
)

// Sink receives finished investigations. Save is called once per
// investigation, for completed and failed ones alike.
type Sink interface {
	Save(ctx context.Context, result *model.InvestigationResult) error
}

func encode(result *model.InvestigationResult) ([]byte, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode investigation %s: %w", result.ID, err)
	}
	return data, nil
}

// FileSink writes each investigation as pretty JSON to <dir>/<id>.json
type FileSink struct {
	dir string
}

// NewFileSink creates a file sink writing into dir
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Path returns the file an investigation is written to
func (s *FileSink) Path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes the result, replacing an earlier file for the same id
func (s *FileSink) Save(ctx context.Context, result *model.InvestigationResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(result)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write investigation %s: %w", result.ID, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close investigation %s: %w", result.ID, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(result.ID)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename investigation %s: %w", result.ID, err)
	}
	return nil
}

// Load reads back an investigation written by Save
func (s *FileSink) Load(id string) (*model.InvestigationResult, error) {
	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("investigation %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("read investigation %s: %w", id, err)
	}
	var result model.InvestigationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode investigation %s: %w", id, err)
	}
	return &result, nil
}

// ObjectPutter is the part of the S3 client the sink uses
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads each investigation to <prefix>/investigations/<id>.json
type S3Sink struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewS3Sink creates a sink over an S3 client
func NewS3Sink(client ObjectPutter, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: prefix}
}

// NewS3Client builds a client from the sink configuration. A custom endpoint
// switches to path-style addressing for MinIO and similar stores. Without
// static keys the default AWS credential chain applies.
func NewS3Client(ctx context.Context, cfg model.SinkConfig) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, config.WithRegion(cfg.S3Region))
	}
	if cfg.S3Endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(cfg.S3Endpoint))
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3Endpoint != ""
	}), nil
}

// Key returns the object key an investigation is stored under
func (s *S3Sink) Key(id string) string {
	return path.Join(s.prefix, "investigations", id+".json")
}

// Save uploads the result as JSON
func (s *S3Sink) Save(ctx context.Context, result *model.InvestigationResult) error {
	data, err := encode(result)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.Key(result.ID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload investigation %s to s3: %w", result.ID, err)
	}
	return nil
}

// MultiSink saves to every sink in order; one failing sink does not stop
// the others
type MultiSink []Sink

// Save returns the joined errors of the failing sinks
func (m MultiSink) Save(ctx context.Context, result *model.InvestigationResult) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
