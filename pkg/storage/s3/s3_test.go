package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type object struct {
	data     []byte
	modified time.Time
}

type fakeS3 struct {
	objects map[string]object
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]object)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = object{data: data, modified: time.Now()}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.data))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			LastModified: aws.Time(f.objects[k].modified),
		})
	}
	return out, nil
}

func TestStoreGetDelete(t *testing.T) {
	client := newFakeS3()
	store := newS3Storage(client, "docs", nil)
	ctx := context.Background()

	key, err := store.Store(ctx, bytes.NewReader([]byte("%PDF-1.4")), "uploads/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "uploads/a.pdf", key)

	rc, err := store.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "%PDF-1.4", string(data))

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	var nsk *types.NoSuchKey
	assert.True(t, errors.As(err, &nsk))
}

func TestCleanupBefore(t *testing.T) {
	client := newFakeS3()
	client.objects["old"] = object{modified: time.Now().Add(-48 * time.Hour)}
	client.objects["new"] = object{modified: time.Now()}
	store := newS3Storage(client, "docs", nil)

	require.NoError(t, store.CleanupBefore(context.Background(), time.Now().Add(-24*time.Hour)))

	assert.NotContains(t, client.objects, "old")
	assert.Contains(t, client.objects, "new")
}
