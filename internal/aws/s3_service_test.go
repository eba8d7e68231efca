package aws

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "clip-studio/pkg/errors"
)

const testBucket = "clips"

// fakeS3 is a path-style S3 endpoint keeping objects in memory
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	headers map[string]http.Header
	puts    chan string
	// failCode, when set, answers every request with this S3 error code
	failCode   string
	failStatus int
}

func newFakeS3(t *testing.T) (*fakeS3, *httptest.Server) {
	f := &fakeS3{
		objects: make(map[string][]byte),
		headers: make(map[string]http.Header),
		puts:    make(chan string, 16),
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCode != "" {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(f.failStatus)
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>injected</Message></Error>`, f.failCode)
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/"+testBucket)
	key = strings.TrimPrefix(key, "/")

	switch {
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		f.headers[key] = r.Header.Clone()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
		f.puts <- key
	case r.Method == http.MethodHead:
		body, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		w.Header().Set("Content-Type", f.headers[key].Get("Content-Type"))
		w.Header().Set("Last-Modified", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat))
		w.Header().Set("X-Amz-Meta-Caption", f.headers[key].Get("X-Amz-Meta-Caption"))
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><Name>%s</Name><KeyCount>0</KeyCount><MaxKeys>1</MaxKeys><IsTruncated>false</IsTruncated></ListBucketResult>`, testBucket)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (f *fakeS3) fail(status int, code string) {
	f.mu.Lock()
	f.failStatus, f.failCode = status, code
	f.mu.Unlock()
}

func (f *fakeS3) object(key string) ([]byte, http.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[key], f.headers[key]
}

func newTestService(t *testing.T, endpoint string) *S3ServiceImpl {
	t.Helper()
	cfg := aws.Config{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
	}
	svc, err := NewS3Service(cfg, S3Options{Bucket: testBucket, Endpoint: endpoint, MaxAttempts: 1})
	require.NoError(t, err)
	return svc
}

func createTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestNewS3Service_RequiresBucket(t *testing.T) {
	_, err := NewS3Service(aws.Config{Region: "us-east-1"}, S3Options{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigurationError))
}

func TestS3ServiceImpl_UploadFile(t *testing.T) {
	fake, srv := newFakeS3(t)
	svc := newTestService(t, srv.URL)
	path := createTestFile(t, "draft.mp4", "not really a movie")

	var mu sync.Mutex
	var last [2]int64
	err := svc.UploadFile(context.Background(), UploadRequest{
		Key:      "drafts/2026/01/abc.mp4",
		FilePath: path,
		Metadata: map[string]string{"caption": "sunset"},
		Progress: func(sent, total int64) {
			mu.Lock()
			last = [2]int64{sent, total}
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	body, header := fake.object("drafts/2026/01/abc.mp4")
	assert.Equal(t, "not really a movie", string(body))
	assert.Equal(t, "video/mp4", header.Get("Content-Type"))
	assert.Equal(t, "sunset", header.Get("X-Amz-Meta-Caption"))
	assert.Equal(t, "draft.mp4", header.Get("X-Amz-Meta-Original-Filename"))
	assert.Equal(t, "AES256", header.Get("X-Amz-Server-Side-Encryption"))

	size := int64(len("not really a movie"))
	assert.Equal(t, [2]int64{size, size}, last)
}

func TestS3ServiceImpl_UploadFileValidation(t *testing.T) {
	_, srv := newFakeS3(t)
	svc := newTestService(t, srv.URL)
	empty := createTestFile(t, "empty.mp4", "")

	tests := []struct {
		name     string
		req      UploadRequest
		wantCode apperrors.ErrorCode
	}{
		{name: "missing key", req: UploadRequest{FilePath: empty}, wantCode: apperrors.ErrInvalidInput},
		{name: "missing path", req: UploadRequest{Key: "k"}, wantCode: apperrors.ErrInvalidInput},
		{name: "nonexistent file", req: UploadRequest{Key: "k", FilePath: filepath.Join(t.TempDir(), "gone.mp4")}, wantCode: apperrors.ErrFileNotFound},
		{name: "empty file", req: UploadRequest{Key: "k", FilePath: empty}, wantCode: apperrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.UploadFile(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, tt.wantCode), "got %v", err)
		})
	}
}

func TestS3ServiceImpl_UploadWaitsForGate(t *testing.T) {
	fake, srv := newFakeS3(t)
	svc := newTestService(t, srv.URL)
	path := createTestFile(t, "draft.mp4", "frames")

	gate := &Gate{}
	gate.Pause()
	done := make(chan error, 1)
	go func() {
		done <- svc.UploadFile(context.Background(), UploadRequest{Key: "paused.mp4", FilePath: path, Gate: gate})
	}()

	select {
	case key := <-fake.puts:
		t.Fatalf("object %s sent while paused", key)
	case <-time.After(100 * time.Millisecond):
	}

	gate.Resume()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("upload did not finish after resume")
	}
	body, _ := fake.object("paused.mp4")
	assert.Equal(t, "frames", string(body))
}

func TestS3ServiceImpl_CancelWhilePaused(t *testing.T) {
	_, srv := newFakeS3(t)
	svc := newTestService(t, srv.URL)
	path := createTestFile(t, "draft.mp4", "frames")

	gate := &Gate{}
	gate.Pause()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.UploadFile(ctx, UploadRequest{Key: "canceled.mp4", FilePath: path, Gate: gate})
	}()
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrUploadCanceled), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("canceled upload did not return")
	}
}

func TestS3ServiceImpl_HeadAndDelete(t *testing.T) {
	_, srv := newFakeS3(t)
	svc := newTestService(t, srv.URL)
	ctx := context.Background()
	path := createTestFile(t, "draft.mov", "0123456789")

	require.NoError(t, svc.UploadFile(ctx, UploadRequest{Key: "a.mov", FilePath: path, Metadata: map[string]string{"caption": "hi"}}))

	info, err := svc.HeadObject(ctx, "a.mov")
	require.NoError(t, err)
	assert.Equal(t, int64(10), info.Size)
	assert.Equal(t, "video/quicktime", info.ContentType)
	assert.Equal(t, "hi", info.Metadata["caption"])
	assert.Equal(t, 2026, info.LastModified.Year())

	require.NoError(t, svc.DeleteObject(ctx, "a.mov"))
	_, err = svc.HeadObject(ctx, "a.mov")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrRecordNotFound), "got %v", err)

	_, err = svc.HeadObject(ctx, "")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
	assert.True(t, apperrors.Is(svc.DeleteObject(ctx, ""), apperrors.ErrInvalidInput))
}

func TestS3ServiceImpl_TestConnection(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		code     string
		wantCode apperrors.ErrorCode
	}{
		{name: "reachable"},
		{name: "access denied", status: http.StatusForbidden, code: "AccessDenied", wantCode: apperrors.ErrS3AccessDenied},
		{name: "missing bucket", status: http.StatusNotFound, code: "NoSuchBucket", wantCode: apperrors.ErrS3BucketNotFound},
		{name: "bad key", status: http.StatusForbidden, code: "InvalidAccessKeyId", wantCode: apperrors.ErrInvalidCredentials},
		{name: "throttled", status: http.StatusServiceUnavailable, code: "SlowDown", wantCode: apperrors.ErrServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, srv := newFakeS3(t)
			if tt.code != "" {
				fake.fail(tt.status, tt.code)
			}
			err := newTestService(t, srv.URL).TestConnection(context.Background())
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, tt.wantCode), "got %v", err)
			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, testBucket, appErr.Context["bucket"])
		})
	}
}

func TestS3ServiceImpl_GeneratePresignedURL(t *testing.T) {
	_, srv := newFakeS3(t)
	svc := newTestService(t, srv.URL)
	ctx := context.Background()

	url, err := svc.GeneratePresignedURL(ctx, "drafts/a.mp4", time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, srv.URL+"/"+testBucket+"/drafts/a.mp4"))
	assert.Contains(t, url, "X-Amz-Expires=3600")

	url, err = svc.GeneratePresignedURL(ctx, "drafts/a.mp4", 30*24*time.Hour)
	require.NoError(t, err)
	assert.Contains(t, url, "X-Amz-Expires=604800", "capped at seven days")

	_, err = svc.GeneratePresignedURL(ctx, "drafts/a.mp4", 0)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
}

func TestGetContentType(t *testing.T) {
	tests := map[string]string{
		"clip.mp4":  "video/mp4",
		"CLIP.MOV":  "video/quicktime",
		"clip.webm": "video/webm",
		"thumb.png": "image/png",
		"notes.txt": "application/octet-stream",
		"noext":     "application/octet-stream",
	}
	for path, want := range tests {
		assert.Equal(t, want, getContentType(path), path)
	}
}

func TestGate(t *testing.T) {
	var g Gate
	assert.False(t, g.Paused())
	require.NoError(t, g.Wait(context.Background()))

	g.Pause()
	g.Pause()
	assert.True(t, g.Paused())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)

	released := make(chan error, 1)
	go func() { released <- g.Wait(context.Background()) }()
	g.Resume()
	g.Resume()
	require.NoError(t, <-released)
	assert.False(t, g.Paused())
}

func TestProgressReader(t *testing.T) {
	var reports []int64
	pr := &progressReader{
		ctx:      context.Background(),
		reader:   strings.NewReader("0123456789"),
		total:    10,
		progress: func(sent, total int64) { reports = append(reports, sent) },
	}
	buf := make([]byte, 4)
	for {
		if _, err := pr.Read(buf); err == io.EOF {
			break
		}
	}
	assert.Equal(t, []int64{4, 8, 10}, reports)
}
