package directory

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/autopeer-io/drivermgr/internal/drivermgr/core"
	"github.com/autopeer-io/drivermgr/pkg/log"
	"github.com/autopeer-io/drivermgr/pkg/options"
)

// ObjectStore reads the vehicle directory from an object in an S3-compatible bucket.
type ObjectStore struct {
	client *minio.Client
	bucket string
	key    string
}

var (
	_ core.Directory      = (*ObjectStore)(nil)
	_ core.PositionSource = (*ObjectStore)(nil)
)

// NewObjectStore creates a directory backed by bucket opts.BucketName and object key.
func NewObjectStore(opts *options.S3Options, key string) (*ObjectStore, error) {
	if key == "" {
		return nil, fmt.Errorf("object key is required")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.UseSSL && opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure:    opts.UseSSL,
		Region:    opts.Region,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &ObjectStore{
		client: client,
		bucket: opts.BucketName,
		key:    key,
	}, nil
}

// CheckBucket verifies that the bucket exists. It never creates it.
func (s *ObjectStore) CheckBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}

func (s *ObjectStore) Vehicles(ctx context.Context) ([]core.VehicleDescriptor, error) {
	doc, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	vehicles, err := doc.Descriptors()
	if err != nil {
		return nil, err
	}
	log.Info("Loaded vehicle directory from object store", "bucket", s.bucket, "key", s.key, "vehicles", len(vehicles))
	return vehicles, nil
}

func (s *ObjectStore) Positions(ctx context.Context) ([]string, error) {
	doc, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Positions, nil
}

func (s *ObjectStore) read(ctx context.Context) (*Document, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", s.bucket, s.key, err)
	}
	defer obj.Close()

	doc, err := Parse(obj, FormatOf(s.key))
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", s.bucket, s.key, err)
	}
	return doc, nil
}
