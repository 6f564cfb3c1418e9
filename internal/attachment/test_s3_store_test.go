package attachment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cityalert/internal/config"
	"cityalert/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 accepts every request and records bucket checks and uploads.
type fakeS3 struct {
	mu      sync.Mutex
	heads   int
	uploads []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	switch r.Method {
	case http.MethodHead:
		f.heads++
	case http.MethodPut:
		f.uploads = append(f.uploads, r.URL.Path)
	}
	f.mu.Unlock()
	w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
	w.WriteHeader(http.StatusOK)
}

func newTestS3Store(t *testing.T) (*S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := NewS3Store(config.AttachmentConfig{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "minio",
		SecretKey: "minio-secret",
		Bucket:    "cityalert-images",
		UseSSL:    false,
	})
	require.NoError(t, err)
	return s, fake
}

func TestS3Store_BucketCheckRetriedAfterCancelledRequest(t *testing.T) {
	s, fake := newTestS3Store(t)
	img := &llm.Image{MIMEType: "image/png", Data: pngBytes}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Save(cancelled, "sess-1", img)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensure bucket")

	ref, err := s.Save(context.Background(), "sess-1", img)
	require.NoError(t, err)
	assert.Contains(t, ref, "/cityalert-images/sess-1/")
	assert.Contains(t, ref, ".png")

	fake.mu.Lock()
	heads := fake.heads
	fake.mu.Unlock()

	_, err = s.Save(context.Background(), "sess-2", img)
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, heads, fake.heads, "a confirmed bucket is not checked again")
	assert.Len(t, fake.uploads, 2)
}
