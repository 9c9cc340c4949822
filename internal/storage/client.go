// Package storage relays binary assets to S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
)

// objectAPI is the slice of the minio client the relay needs; tests
// substitute a fake.
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

type minioWrapper struct{ c *minio.Client }

func (w minioWrapper) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return w.c.BucketExists(ctx, bucketName)
}

func (w minioWrapper) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return w.c.MakeBucket(ctx, bucketName, opts)
}

func (w minioWrapper) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return w.c.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}

func (w minioWrapper) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return w.c.RemoveObject(ctx, bucketName, objectName, opts)
}

func (w minioWrapper) PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error) {
	return w.c.PresignedGetObject(ctx, bucketName, objectName, expires, reqParams)
}

type UploadResult struct {
	Key string
	URL string
}

type Client struct {
	api     objectAPI
	bucket  string
	baseURL string
	pre     ImagePreprocessor
}

// NewClient wraps a real minio client and ensures the bucket exists.
func NewClient(ctx context.Context, client *minio.Client, bucket string, pre ImagePreprocessor) (*Client, error) {
	return newClient(ctx, minioWrapper{c: client}, bucket, client.EndpointURL().String(), pre)
}

func newClient(ctx context.Context, api objectAPI, bucket, baseURL string, pre ImagePreprocessor) (*Client, error) {
	if pre == nil {
		pre = NopPreprocessor{}
	}
	c := &Client{api: api, bucket: bucket, baseURL: baseURL, pre: pre}

	exists, err := api.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return c, nil
}

// Upload stores the image under a fresh collision-free key and returns
// the key plus a public URL. A failing preprocessor falls back to the
// original bytes; it never fails the upload.
func (c *Client) Upload(ctx context.Context, folder, ext, contentType string, data []byte) (UploadResult, error) {
	if processed, err := c.pre.Process(ctx, data, contentType); err == nil {
		data = processed
	}

	key, err := objectKey(folder, ext)
	if err != nil {
		return UploadResult{}, err
	}

	_, err = c.api.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to upload object: %w", err)
	}

	return UploadResult{Key: key, URL: c.ObjectURL(key)}, nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.api.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// SignedURL issues a time-limited GET link for private buckets.
func (c *Client) SignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	signed, err := c.api.PresignedGetObject(ctx, c.bucket, key, expires, nil)
	if err != nil {
		return "", fmt.Errorf("failed to sign object url: %w", err)
	}
	return signed.String(), nil
}

func (c *Client) ObjectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.bucket, key)
}

func objectKey(folder, ext string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%d_%s%s", time.Now().UnixMilli(), hex.EncodeToString(buf), ext)
	if folder == "" {
		return name, nil
	}
	return folder + "/" + name, nil
}
