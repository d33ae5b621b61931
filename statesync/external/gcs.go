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

	"cloud.google.com/go/storage"
)

// GCSStore fetches state parts from a Google Cloud Storage bucket.
type GCSStore struct {
	bucket string
	client *storage.Client
}

// NewGCSStore creates a client against bucket using application-default
// credentials.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("statesync: failed to create a GCS client: %w", err)
	}
	return &GCSStore{bucket: bucket, client: client}, nil
}

func (g *GCSStore) Name() string { return "gcs" }

// Get fetches the object named by key from the bucket.
func (g *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("statesync: gcs get %s/%s: %w", g.bucket, key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("statesync: gcs read %s/%s: %w", g.bucket, key, err)
	}
	return data, nil
}
