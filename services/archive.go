package services

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// Archiver stores the raw upstream body of a recorded prediction.
type Archiver interface {
	Archive(ctx context.Context, rec *PredictionRecord, body []byte) error
}

type S3Archive struct {
	svc    s3iface.S3API
	bucket string
}

// NewS3Archive uses the default AWS credential chain (env vars, shared
// config, instance role).
func NewS3Archive(region, bucket string) (*S3Archive, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, err
	}
	return NewS3ArchiveWithClient(s3.New(sess), bucket), nil
}

func NewS3ArchiveWithClient(svc s3iface.S3API, bucket string) *S3Archive {
	return &S3Archive{svc: svc, bucket: bucket}
}

func ArchiveKey(rec *PredictionRecord) string {
	return fmt.Sprintf("predictions/%s/%s/%s/%s.json",
		rec.Kind, rec.Disease, rec.CreatedAt.UTC().Format("2006-01-02"), rec.ID)
}

func (a *S3Archive) Archive(ctx context.Context, rec *PredictionRecord, body []byte) error {
	_, err := a.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(ArchiveKey(rec)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive %s to s3://%s: %w", rec.ID, a.bucket, err)
	}
	return nil
}
