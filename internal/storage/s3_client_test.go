package storage

import (
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3API struct {
	mock.Mock
}

func (m *mockS3API) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func (m *mockS3API) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.DeleteObjectOutput)
	return out, args.Error(1)
}

func TestS3Client_PutObject(t *testing.T) {
	api := &mockS3API{}
	client := newS3Client(api, ObjectStoreConfig{Bucket: "media", Endpoint: "minio:9000"})

	var body []byte
	api.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Bucket) == "media" &&
			aws.ToString(in.Key) == "uploads/1-a.png" &&
			aws.ToString(in.ContentType) == "image/png" &&
			aws.ToInt64(in.ContentLength) == 3
	})).Run(func(args mock.Arguments) {
		in := args.Get(1).(*s3.PutObjectInput)
		body, _ = io.ReadAll(in.Body)
	}).Return(&s3.PutObjectOutput{}, nil)

	url, err := client.PutObject(context.Background(), "uploads/1-a.png", []byte("abc"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000/media/uploads/1-a.png", url)
	assert.Equal(t, "abc", string(body))
	api.AssertExpectations(t)
}

func TestS3Client_DeleteObject(t *testing.T) {
	api := &mockS3API{}
	client := newS3Client(api, ObjectStoreConfig{Bucket: "media", Region: "eu-west-1"})

	api.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return aws.ToString(in.Bucket) == "media" && aws.ToString(in.Key) == "k"
	})).Return(&s3.DeleteObjectOutput{}, nil)

	require.NoError(t, client.DeleteObject(context.Background(), "k"))
	assert.Equal(t, "https://s3.eu-west-1.amazonaws.com", client.baseURL)
	api.AssertExpectations(t)
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "https://minio:9000", endpointURL("minio:9000", true))
	assert.Equal(t, "http://minio:9000", endpointURL("minio:9000", false))
	assert.Equal(t, "http://custom", endpointURL("http://custom", true))
}
