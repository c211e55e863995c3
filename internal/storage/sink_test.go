package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySink records uploads in memory.
type memorySink struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	failKey string
	puts    int
}

func newMemorySink() *memorySink {
	return &memorySink{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memorySink) Unchanged(ctx context.Context, key string, data []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.objects[key]
	return ok && bytes.Equal(stored, data), nil
}

func (m *memorySink) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if key == m.failKey {
		return errors.New("upload refused")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	m.puts++
	return nil
}

func (m *memorySink) Location(key string) string { return "mem://" + key }

func TestStore_Mirror(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteText(RawContentFile, "raw"))
	require.NoError(t, s.WriteText(StructuredFile, structured))

	manifest, err := s.Snapshot(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	sink := newMemorySink()
	require.NoError(t, s.Mirror(context.Background(), sink, "polyscribe", manifest))

	assert.Len(t, sink.objects, 3)
	assert.Equal(t, "raw", string(sink.objects["polyscribe/2025-08-01/"+RawContentFile]))
	assert.Equal(t, "application/json", sink.types["polyscribe/2025-08-01/"+SummaryFile])
	assert.Equal(t, "text/plain; charset=utf-8", sink.types["polyscribe/2025-08-01/"+RawContentFile])

	assert.Equal(t, 3, sink.puts)

	// Identical files are not uploaded again
	require.NoError(t, s.Mirror(context.Background(), sink, "polyscribe", manifest))
	assert.Len(t, sink.objects, 3)
	assert.Equal(t, 3, sink.puts)

	// A later snapshot on the same day only uploads what changed
	require.NoError(t, s.WriteText(RawContentFile, "raw, second fetch"))
	manifest, err = s.Snapshot(time.Date(2025, 8, 1, 18, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, s.Mirror(context.Background(), sink, "polyscribe", manifest))
	assert.Equal(t, 5, sink.puts, "raw content and summary change, structured data does not")
	assert.Equal(t, "raw, second fetch", string(sink.objects["polyscribe/2025-08-01/"+RawContentFile]))
}

func TestStore_MirrorFailure(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteText(RawContentFile, "raw"))
	manifest, err := s.Snapshot(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	sink := newMemorySink()
	sink.failKey = "2025-08-01/" + RawContentFile
	err = s.Mirror(context.Background(), sink, "", manifest)
	assert.Error(t, err)
	assert.Empty(t, sink.objects)
}

func TestNullSink(t *testing.T) {
	var sink Sink = NullSink{}
	ok, err := sink.Unchanged(context.Background(), "k", []byte("x"))
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, sink.Put(context.Background(), "k", []byte("x"), "text/plain"))
}

func TestS3Sink_AgainstFakeEndpoint(t *testing.T) {
	var mu sync.Mutex
	puts := map[string]string{}
	stored := []byte(`{"date": "2025-08-01"}`)
	sum := md5.Sum(stored)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			if r.URL.Path == "/snapshots/p/2025-08-01/summary.json" {
				w.Header().Set("ETag", `"`+hex.EncodeToString(sum[:])+`"`)
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			puts[r.URL.Path] = string(body)
			mu.Unlock()
			w.Header().Set("ETag", `"etag"`)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  aws.AnonymousCredentials{},
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
	})
	sink := &S3Sink{Bucket: "snapshots", Client: client, Up: manager.NewUploader(client)}
	ctx := context.Background()

	same, err := sink.Unchanged(ctx, "p/2025-08-01/summary.json", stored)
	require.NoError(t, err)
	assert.True(t, same)

	same, err = sink.Unchanged(ctx, "p/2025-08-01/summary.json", []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, same)

	same, err = sink.Unchanged(ctx, "p/2025-08-01/absent.txt", stored)
	require.NoError(t, err)
	assert.False(t, same)

	require.NoError(t, sink.Put(ctx, "p/2025-08-01/raw.txt", []byte("raw"), "text/plain"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "raw", puts["/snapshots/p/2025-08-01/raw.txt"])
	assert.Equal(t, "s3://snapshots/p/2025-08-01/summary.json", sink.Location("p/2025-08-01/summary.json"))
}
