// Copyright 2025 The nearcore Go authors
// This file is part of the nearcore Go state sync core.
//
// This software is provided "as is", without warranty of any kind,
// express or implied, including but not limited to the warranties
// of merchantability, fitness for a particular purpose and
// noninfringement. In no event shall the authors or copyright
// holders be liable for any claim, damages, or other liability,
// whether in an action of contract, tort or otherwise, arising
// from, out of or in connection with the software or the use or
// other dealings in the software.

package external

import (
	"context"
	"fmt"
	"io"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store fetches state parts from an S3-compatible bucket. It is
// constructed read-only: state sync never writes to external storage, only
// the dump side (out of scope here) does.
type S3Store struct {
	bucket string
	client *s3.Client
}

// NewS3Store creates a read-only client against bucket in region.
func NewS3Store(ctx context.Context, bucket, region string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("statesync: failed to create an S3 client: %w", err)
	}
	return &S3Store{
		bucket: bucket,
		client: s3.NewFromConfig(cfg),
	}, nil
}

func (s *S3Store) Name() string { return "s3" }

// Get fetches the object named by key from the bucket.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("statesync: s3 get %s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("statesync: s3 read %s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}
