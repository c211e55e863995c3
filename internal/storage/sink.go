package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awshttp "github.com/aws/smithy-go/transport/http"
	"github.com/sirupsen/logrus"

	"github.com/rewired-gh/polyscribe/internal/config"
	"github.com/rewired-gh/polyscribe/internal/models"
)

// Sink receives copies of snapshot files.
type Sink interface {
	// Unchanged reports whether key already holds exactly data.
	Unchanged(ctx context.Context, key string, data []byte) (bool, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Location describes where keys end up, for logs and reports.
	Location(key string) string
}

// NullSink discards everything.
type NullSink struct{}

func (NullSink) Unchanged(ctx context.Context, key string, data []byte) (bool, error) {
	return false, nil
}

func (NullSink) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return nil
}

func (NullSink) Location(key string) string { return "" }

// S3Sink uploads snapshot files to a bucket.
type S3Sink struct {
	Bucket string
	Client *s3.Client
	Up     *manager.Uploader
}

// NewS3Sink builds a sink from the default AWS credential chain.
func NewS3Sink(ctx context.Context, cfg config.S3Config) (*S3Sink, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &S3Sink{
		Bucket: cfg.Bucket,
		Client: client,
		Up:     manager.NewUploader(client),
	}, nil
}

// Unchanged compares the object's ETag with the MD5 of data. Objects
// uploaded in several parts never match and are uploaded again.
func (s *S3Sink) Unchanged(ctx context.Context, key string, data []byte) (bool, error) {
	out, err := s.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var re *awshttp.ResponseError
		if errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	sum := md5.Sum(data)
	return strings.Trim(aws.ToString(out.ETag), `"`) == hex.EncodeToString(sum[:]), nil
}

func (s *S3Sink) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.Up.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	return err
}

func (s *S3Sink) Location(key string) string {
	return "s3://" + s.Bucket + "/" + key
}

// Mirror uploads the files of a snapshot to sink under <prefix>/<date>/,
// skipping keys that already hold the same bytes. It stops at the first
// failed upload.
func (s *Store) Mirror(ctx context.Context, sink Sink, prefix string, manifest *models.Manifest) error {
	names := make([]string, 0, len(manifest.Files)+1)
	for _, f := range manifest.Files {
		names = append(names, f.Name)
	}
	names = append(names, SummaryFile)

	dir := s.SnapshotDir(manifest.Date)
	skipped := 0
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}

		key := path.Join(prefix, manifest.Date, name)
		same, err := sink.Unchanged(ctx, key, data)
		if err != nil {
			s.log.WithError(err).WithField("key", key).Debug("Could not compare mirrored object, uploading")
		}
		if same {
			skipped++
			continue
		}
		if err := sink.Put(ctx, key, data, contentType(name)); err != nil {
			return fmt.Errorf("failed to upload %s: %w", key, err)
		}
		s.log.WithFields(logrus.Fields{
			"location": sink.Location(key),
			"bytes":    len(data),
		}).Debug("Snapshot file mirrored")
	}

	s.log.WithFields(logrus.Fields{
		"files":     len(names),
		"unchanged": skipped,
		"date":      manifest.Date,
	}).Info("Snapshot mirrored")
	return nil
}

func contentType(name string) string {
	if strings.HasSuffix(name, ".json") {
		return "application/json"
	}
	return "text/plain; charset=utf-8"
}
