package ledger

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/ad-autopilot/internal/pkg/logger"
)

// S3API is the slice of the S3 client the archiver uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver snapshots the state files to S3 after each run, so the
// approval trail survives the host.
type S3Archiver struct {
	client S3API
	bucket string
	ledger *Ledger
}

// NewS3Archiver creates an archiver for the given bucket using the
// default AWS credential chain.
func NewS3Archiver(ctx context.Context, bucket, region string, l *Ledger) (*S3Archiver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("ledger: loading AWS config for archiver: %w", err)
	}
	return &S3Archiver{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		ledger: l,
	}, nil
}

// NewS3ArchiverWithClient builds an archiver around an existing client
// (useful for testing).
func NewS3ArchiverWithClient(client S3API, bucket string, l *Ledger) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, ledger: l}
}

func (a *S3Archiver) key(file string, now time.Time) string {
	return fmt.Sprintf("ad-autopilot/state/%s/%s", now.Format("2006-01-02"), file)
}

// Archive uploads the current state files. Missing files are skipped;
// upload failures are logged and reported but do not stop remaining
// uploads, since the local files stay authoritative.
func (a *S3Archiver) Archive(ctx context.Context) error {
	now := time.Now().UTC()
	paths := map[string]string{
		ApprovalsFile: a.ledger.approvalsPath,
		HistoryFile:   a.ledger.historyPath,
		ReactionsFile: a.ledger.reactionsPath,
	}

	var firstErr error
	for file, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(a.key(file, now)),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			logger.Warn("state archive upload failed", "file", file, "bucket", a.bucket, "error", err.Error())
			if firstErr == nil {
				firstErr = fmt.Errorf("ledger: archiving %s: %w", file, err)
			}
			continue
		}
		logger.Debug("state file archived", "file", file, "bucket", a.bucket)
	}
	return firstErr
}
