package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectAPI struct {
	bucketExists    bool
	bucketExistsErr error
	makeBucketErr   error

	putKey         string
	putContentType string
	putSize        int64
	putErr         error

	removedKey string
	removeErr  error
}

func (f *fakeObjectAPI) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, f.bucketExistsErr
}

func (f *fakeObjectAPI) MakeBucket(_ context.Context, _ string, _ minio.MakeBucketOptions) error {
	return f.makeBucketErr
}

func (f *fakeObjectAPI) PutObject(_ context.Context, _, objectName string, _ io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.putKey = objectName
	f.putContentType = opts.ContentType
	f.putSize = objectSize
	return minio.UploadInfo{Key: objectName}, f.putErr
}

func (f *fakeObjectAPI) RemoveObject(_ context.Context, _, objectName string, _ minio.RemoveObjectOptions) error {
	f.removedKey = objectName
	return f.removeErr
}

func (f *fakeObjectAPI) PresignedGetObject(_ context.Context, bucket, objectName string, _ time.Duration, _ url.Values) (*url.URL, error) {
	return url.Parse("https://signed.example.com/" + bucket + "/" + objectName)
}

type failingPreprocessor struct{}

func (failingPreprocessor) Process(_ context.Context, _ []byte, _ string) ([]byte, error) {
	return nil, errors.New("resize failed")
}

type halvingPreprocessor struct{}

func (halvingPreprocessor) Process(_ context.Context, data []byte, _ string) ([]byte, error) {
	return data[:len(data)/2], nil
}

func TestNewClientEnsuresBucket(t *testing.T) {
	api := &fakeObjectAPI{bucketExists: false}
	c, err := newClient(context.Background(), api, "media", "http://localhost:9000", nil)
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestNewClientBucketCheckError(t *testing.T) {
	api := &fakeObjectAPI{bucketExistsErr: errors.New("boom")}
	c, err := newClient(context.Background(), api, "media", "http://localhost:9000", nil)
	assert.Nil(t, c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to check bucket")
}

func TestUploadKeyAndURL(t *testing.T) {
	api := &fakeObjectAPI{bucketExists: true}
	c, err := newClient(context.Background(), api, "media", "http://localhost:9000", nil)
	require.NoError(t, err)

	result, err := c.Upload(context.Background(), "images", ".png", "image/png", []byte("pngbytes"))
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^images/\d+_[0-9a-f]{16}\.png$`), result.Key)
	assert.Equal(t, "http://localhost:9000/media/"+result.Key, result.URL)
	assert.Equal(t, "image/png", api.putContentType)
	assert.Equal(t, int64(len("pngbytes")), api.putSize)
}

func TestUploadPreprocessorApplied(t *testing.T) {
	api := &fakeObjectAPI{bucketExists: true}
	c, err := newClient(context.Background(), api, "media", "http://localhost:9000", halvingPreprocessor{})
	require.NoError(t, err)

	_, err = c.Upload(context.Background(), "images", ".jpg", "image/jpeg", []byte("12345678"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), api.putSize)
}

func TestUploadPreprocessorFailureFallsBack(t *testing.T) {
	api := &fakeObjectAPI{bucketExists: true}
	c, err := newClient(context.Background(), api, "media", "http://localhost:9000", failingPreprocessor{})
	require.NoError(t, err)

	_, err = c.Upload(context.Background(), "images", ".jpg", "image/jpeg", []byte("original"))
	require.NoError(t, err)
	assert.Equal(t, int64(len("original")), api.putSize)
}

func TestDelete(t *testing.T) {
	api := &fakeObjectAPI{bucketExists: true}
	c, err := newClient(context.Background(), api, "media", "http://localhost:9000", nil)
	require.NoError(t, err)

	require.NoError(t, c.Delete(context.Background(), "images/x.png"))
	assert.Equal(t, "images/x.png", api.removedKey)

	api.removeErr = errors.New("gone")
	err = c.Delete(context.Background(), "images/x.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to delete object")
}

func TestSignedURL(t *testing.T) {
	api := &fakeObjectAPI{bucketExists: true}
	c, err := newClient(context.Background(), api, "media", "http://localhost:9000", nil)
	require.NoError(t, err)

	signed, err := c.SignedURL(context.Background(), "images/x.png", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example.com/media/images/x.png", signed)
}
