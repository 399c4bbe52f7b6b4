package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3BackupConfig carries the off-box backup target for the audit log.
// Bucket empty disables backup entirely.
type S3BackupConfig struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// BackupToS3 exports the most recent audit events as JSONL and uploads
// them to the configured bucket under a timestamped key, so the
// hash-chained log survives a lost or corrupted local database. Returns
// the uploaded key.
func (svc *Service) BackupToS3(ctx context.Context, backup S3BackupConfig) (string, error) {
	if backup.Bucket == "" {
		return "", fmt.Errorf("audit: s3 backup bucket not configured")
	}

	body, err := svc.Export(FormatJSONL, "", 1000, "")
	if err != nil {
		return "", fmt.Errorf("audit: export for backup: %w", err)
	}

	optFns := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(backup.Region),
	}
	if backup.AccessKeyID != "" && backup.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(backup.AccessKeyID, backup.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return "", fmt.Errorf("audit: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	uploader := manager.NewUploader(client)

	key := fmt.Sprintf("audit-backups/%s.jsonl", time.Now().UTC().Format("20060102T150405.000000000"))
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(backup.Bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("audit: upload to s3: %w", err)
	}
	return key, nil
}
