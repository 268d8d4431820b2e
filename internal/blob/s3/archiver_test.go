package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

// memBlobs is an in-memory bucket.
type memBlobs struct {
	objects   map[string][]byte
	multipart int
	failPut   error
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if m.failPut != nil {
		return m.failPut
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	m.multipart++
	return m.Put(ctx, path, data, contentTypeJSON)
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func TestSnapshotPath(t *testing.T) {
	ts := time.Date(2026, 3, 1, 23, 30, 0, 0, time.FixedZone("X", -2*3600))
	assert.Equal(t, "snapshots/2026/03/02/abc.json", SnapshotPath(ts, "abc"))
}

func TestArchiveCycleRoundTrip(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	arch := NewArchiver(blobs, 0)

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	report := domain.CycleReport{CycleID: "cycle-1", StartedAt: started, TokensPriced: 2}

	var history [domain.IntervalCount]domain.PricePoint
	history[domain.Interval24h] = domain.PricePoint{Value: 0.5, CapturedAt: started, Change: 10}
	tokens := []domain.Token{
		{Ticker: "FOO", Floor: &domain.FloorPrice{Stx: 80, Usd: 0.00016}, ActiveListings: 3, History: history},
		{Ticker: "BAR"},
	}

	require.NoError(t, arch.ArchiveCycle(ctx, report, tokens))
	assert.Zero(t, blobs.multipart)

	browser := NewArchiveBrowser(blobs)
	infos, err := browser.ListDay(ctx, started)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "snapshots/2026/03/01/cycle-1.json", infos[0].Path)

	doc, err := browser.Load(ctx, infos[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "cycle-1", doc.Report.CycleID)
	require.Len(t, doc.Tokens, 2)

	foo := doc.Tokens[0]
	assert.Equal(t, "FOO", foo.Ticker)
	assert.Equal(t, 80.0, foo.FloorPriceStx)
	assert.Equal(t, 3, foo.ActiveListings)
	require.Contains(t, foo.History, "24h")
	assert.Equal(t, 10.0, foo.History["24h"].Change)
	assert.NotContains(t, foo.History, "1h")

	assert.Zero(t, doc.Tokens[1].FloorPriceStx)
	assert.Nil(t, doc.Tokens[1].History)
}

func TestArchiveBrowserLoad(t *testing.T) {
	browser := NewArchiveBrowser(newMemBlobs())

	_, err := browser.Load(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = browser.Load(context.Background(), "snapshots/2026/03/01/missing.json")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestArchiveCyclePutError(t *testing.T) {
	blobs := newMemBlobs()
	blobs.failPut = errors.New("bucket gone")
	arch := NewArchiver(blobs, 0)

	err := arch.ArchiveCycle(context.Background(), domain.CycleReport{CycleID: "x"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket gone")
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("localhost:9000", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
}

func TestListDayNewestFirst(t *testing.T) {
	blobs := newMemBlobs()
	for _, p := range []string{
		"snapshots/2026/03/01/a.json",
		"snapshots/2026/03/01/b.json",
		"snapshots/2026/03/01/notes.txt",
		"snapshots/2026/03/02/c.json",
	} {
		blobs.objects[p] = []byte("{}")
	}

	infos, err := NewArchiveBrowser(blobs).ListDay(context.Background(), time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "snapshots/2026/03/01/b.json", infos[0].Path)
	assert.Equal(t, "snapshots/2026/03/01/a.json", infos[1].Path)
}

func TestIsNotFound(t *testing.T) {
	for _, code := range []string{"NoSuchKey", "NotFound", "NoSuchBucket"} {
		err := fmt.Errorf("operation error S3: GetObject: %w", &smithy.GenericAPIError{Code: code})
		assert.True(t, isNotFound(err), code)
	}
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("dial tcp: timeout")))
}

func TestClientConfigValidate(t *testing.T) {
	assert.NoError(t, ClientConfig{Bucket: "b", Region: "us-east-1"}.validate())

	err := ClientConfig{AccessKey: "AKIA"}.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket name is required")
	assert.Contains(t, err.Error(), "region is required")
	assert.Contains(t, err.Error(), "secret key is required")
}
