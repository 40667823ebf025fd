package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutServeDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "http://localhost:8080/media/")
	require.NoError(t, err)
	ctx := context.Background()

	url, err := store.Put(ctx, "posts/alice/1_cat.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/media/posts/alice/1_cat.png", url)

	data, err := os.ReadFile(filepath.Join(dir, "posts", "alice", "1_cat.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	rec := httptest.NewRecorder()
	store.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/posts/alice/1_cat.png", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png-bytes", rec.Body.String())

	require.NoError(t, store.Delete(ctx, url))
	_, err = os.Stat(filepath.Join(dir, "posts", "alice", "1_cat.png"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.NoError(t, store.Delete(ctx, url), "deleting twice succeeds")
}

func TestLocalStore_HandlerHidesDirectories(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://localhost/media")
	require.NoError(t, err)
	_, err = store.Put(context.Background(), "posts/alice/1_cat.png", "image/png", strings.NewReader("png"))
	require.NoError(t, err)

	for _, path := range []string{"/", "/posts/", "/posts", "/posts/alice/", "/posts/alice", "/posts/alice/missing.png"} {
		rec := httptest.NewRecorder()
		store.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.NotContains(t, rec.Body.String(), "1_cat.png", path)
	}
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://localhost/media")
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../outside.png", "image/png", strings.NewReader("x"))
	assert.Error(t, err)
	assert.Error(t, store.Delete(context.Background(), "http://elsewhere/posts/a.png"))
}

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	deletes []*s3.DeleteObjectInput
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, f.err
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, in)
	return &s3.DeleteObjectOutput{}, f.err
}

func TestS3Store_PutAndDelete(t *testing.T) {
	api := &fakeS3{}
	store := &S3Store{client: api, bucket: "feed-media", region: "eu-west-3"}

	url, err := store.Put(context.Background(), "posts/u1/1_a.jpg", "image/jpeg", strings.NewReader("jpg"))
	require.NoError(t, err)
	assert.Equal(t, "https://feed-media.s3.eu-west-3.amazonaws.com/posts/u1/1_a.jpg", url)
	require.Len(t, api.puts, 1)
	assert.Equal(t, "feed-media", aws.ToString(api.puts[0].Bucket))
	assert.Equal(t, "image/jpeg", aws.ToString(api.puts[0].ContentType))

	require.NoError(t, store.Delete(context.Background(), url))
	require.Len(t, api.deletes, 1)
	assert.Equal(t, "posts/u1/1_a.jpg", aws.ToString(api.deletes[0].Key))

	assert.Error(t, store.Delete(context.Background(), "https://other.s3.eu-west-3.amazonaws.com/x"))
}

func TestS3Store_PropagatesErrors(t *testing.T) {
	api := &fakeS3{err: errors.New("access denied")}
	store := &S3Store{client: api, bucket: "b", region: "r"}
	_, err := store.Put(context.Background(), "k", "image/png", strings.NewReader("x"))
	assert.ErrorContains(t, err, "access denied")
}
