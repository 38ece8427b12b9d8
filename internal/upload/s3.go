package upload

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Coordinator builds a Coordinator backed by real S3 clients using the
// ambient credential chain (env, shared config, instance role).
func NewS3Coordinator(ctx context.Context, region, bucket string, urlTTL time.Duration) (*Coordinator, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return NewCoordinator(client, s3.NewPresignClient(client), bucket, urlTTL)
}
