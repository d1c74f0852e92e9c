package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ReadSource fetches config/rule-list content from a local path or, when
// uri has an "s3://bucket/key" form, from S3. A bare path is treated as
// local and read with a plain os.ReadFile for the common case.
func ReadSource(ctx context.Context, uri string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(uri, "s3://"); ok {
		slash := strings.IndexByte(rest, '/')
		if slash < 0 {
			return nil, fmt.Errorf("config: malformed s3 uri %q", uri)
		}
		return readS3(ctx, rest[:slash], rest[slash+1:])
	}

	raw, err := os.ReadFile(uri)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", uri, err)
	}
	return raw, nil
}

func readS3(ctx context.Context, bucket, key string) ([]byte, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("config: loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key: aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("config: fetching s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("config: reading s3://%s/%s body: %w", bucket, key, err)
	}
	return raw, nil
}
