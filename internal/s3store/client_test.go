package s3store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kshitiz1403/dicom-transfer/internal/fsutil"
	"github.com/Kshitiz1403/dicom-transfer/internal/testutil"
)

type apiError struct {
	code string
}

func (e *apiError) Error() string            { return e.code }
func (e *apiError) ErrorCode() string        { return e.code }
func (e *apiError) ErrorMessage() string     { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

func newTestFS(t *testing.T, files map[string][]byte) *fsutil.FS {
	t.Helper()
	fsys := fsutil.NewInMemoryFS()
	for path, data := range files {
		require.NoError(t, fsys.WriteFile(path, data, 0o644))
	}
	return fsys
}

func TestUpload(t *testing.T) {
	fsys := newTestFS(t, map[string][]byte{"/data/scan.dcm": []byte("scan bytes")})

	var got *s3.PutObjectInput
	mock := &testutil.MockS3Client{
		PutObjectFunc: func(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			got = params
			return &s3.PutObjectOutput{}, nil
		},
	}
	client := NewWithClient(mock, WithFilesystem(fsys))

	var reported int64
	err := client.Upload(context.Background(), "bucket", "studies/1/scan.dcm", "/data/scan.dcm", func(n int64) {
		reported += n
	})
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "bucket", aws.ToString(got.Bucket))
	assert.Equal(t, "studies/1/scan.dcm", aws.ToString(got.Key))
	assert.Equal(t, s3types.ServerSideEncryptionAes256, got.ServerSideEncryption)
	assert.Equal(t, int64(len("scan bytes")), aws.ToInt64(got.ContentLength))
	assert.Equal(t, int64(len("scan bytes")), reported)
}

func TestUploadMissingFile(t *testing.T) {
	client := NewWithClient(&testutil.MockS3Client{}, WithFilesystem(newTestFS(t, nil)))

	err := client.Upload(context.Background(), "bucket", "key", "/missing", nil)
	require.Error(t, err)

	var opErr *Error
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "upload", opErr.Op)
}

func TestUploadInvalidInput(t *testing.T) {
	client := NewWithClient(&testutil.MockS3Client{}, WithFilesystem(newTestFS(t, nil)))

	err := client.Upload(context.Background(), "", "key", "/p", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDownload(t *testing.T) {
	fsys := newTestFS(t, nil)
	mock := &testutil.MockS3Client{
		GetObjectFunc: func(_ context.Context, _ *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			return &s3.GetObjectOutput{
				Body: io.NopCloser(bytes.NewReader([]byte("object bytes"))),
			}, nil
		},
	}
	client := NewWithClient(mock, WithFilesystem(fsys))

	var reported int64
	err := client.Download(context.Background(), "bucket", "studies/1/scan.dcm", "/out/scan.dcm", func(n int64) {
		reported = n
	})
	require.NoError(t, err)

	data, err := fsys.ReadFile("/out/scan.dcm")
	require.NoError(t, err)
	assert.Equal(t, []byte("object bytes"), data)
	assert.Equal(t, int64(len("object bytes")), reported)
}

func TestDownloadNotFound(t *testing.T) {
	mock := &testutil.MockS3Client{
		GetObjectFunc: func(_ context.Context, _ *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			return nil, &s3types.NoSuchKey{}
		},
	}
	client := NewWithClient(mock, WithFilesystem(newTestFS(t, nil)))

	err := client.Download(context.Background(), "bucket", "gone", "/out/f", nil)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestExists(t *testing.T) {
	tests := []struct {
		name    string
		headErr error
		want    bool
		wantErr bool
	}{
		{name: "present", want: true},
		{name: "absent", headErr: &apiError{code: "NotFound"}, want: false},
		{name: "failure", headErr: errors.New("boom"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &testutil.MockS3Client{
				HeadObjectFunc: func(_ context.Context, _ *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
					if tt.headErr != nil {
						return nil, tt.headErr
					}
					return &s3.HeadObjectOutput{}, nil
				},
			}
			client := NewWithClient(mock, WithFilesystem(newTestFS(t, nil)))

			got, err := client.Exists(context.Background(), "bucket", "key")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListFollowsContinuationTokens(t *testing.T) {
	pages := [][]string{
		{"studies/1/a.dcm", "studies/1/b.dcm"},
		{"studies/1/c.dcm"},
	}
	call := 0
	mock := &testutil.MockS3Client{
		ListObjectsV2Func: func(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
			if call == 1 {
				assert.Equal(t, "next", aws.ToString(params.ContinuationToken))
			}
			page := pages[call]
			call++
			out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(call < len(pages))}
			if call < len(pages) {
				out.NextContinuationToken = aws.String("next")
			}
			for _, k := range page {
				out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
			}
			return out, nil
		},
	}
	client := NewWithClient(mock, WithFilesystem(newTestFS(t, nil)))

	keys, err := client.List(context.Background(), "bucket", "studies/1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"studies/1/a.dcm", "studies/1/b.dcm", "studies/1/c.dcm"}, keys)
	assert.Equal(t, 2, call)
}

func TestDelete(t *testing.T) {
	called := false
	mock := &testutil.MockS3Client{
		DeleteObjectFunc: func(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
			called = true
			assert.Equal(t, "key", aws.ToString(params.Key))
			return &s3.DeleteObjectOutput{}, nil
		},
	}
	client := NewWithClient(mock, WithFilesystem(newTestFS(t, nil)))

	require.NoError(t, client.Delete(context.Background(), "bucket", "key"))
	assert.True(t, called)
}

func TestErrorFormatting(t *testing.T) {
	err := newError("upload", "bucket", "key", errors.New("boom"))
	assert.Equal(t, "s3store.upload bucket/key: boom", err.Error())
	assert.EqualError(t, errors.Unwrap(err), "boom")
}
