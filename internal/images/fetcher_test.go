package images

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/alanorth/safari-bingo/internal/models"
	"github.com/alanorth/safari-bingo/internal/storage"
)

const lionURL = "https://images.example.org/lion.jpg"

var lion = models.Animal{ID: "1", CommonName: "Lion", ImageURL: lionURL, CropFocus: models.CropAttention}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestFetcher(t *testing.T, transport http.RoundTripper) (*Fetcher, *storage.Store) {
	t.Helper()
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)

	f := NewFetcher(store,
		WithHTTPClient(&http.Client{Transport: transport}),
		WithRateLimit(0),
	)
	return f, store
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestEnsureImageDownloadsOnce(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, lionURL, httpmock.NewBytesResponder(http.StatusOK, []byte("jpeg bytes")))

	f, store := newTestFetcher(t, transport)

	downloaded, err := f.EnsureImage(context.Background(), lion)
	require.NoError(t, err)
	assert.True(t, downloaded)

	downloaded, err = f.EnsureImage(context.Background(), lion)
	require.NoError(t, err)
	assert.False(t, downloaded)

	assert.Equal(t, 1, transport.GetTotalCallCount())

	data, err := os.ReadFile(store.ImagePath("1"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))
	assert.Equal(t, []string{"1.jpg"}, dirEntries(t, store.Dir()))
}

func TestEnsureImageSendsUserAgent(t *testing.T) {
	var gotUA string
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, lionURL, func(req *http.Request) (*http.Response, error) {
		gotUA = req.Header.Get("User-Agent")
		return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
	})

	f, _ := newTestFetcher(t, transport)
	_, err := f.EnsureImage(context.Background(), lion)
	require.NoError(t, err)

	assert.Equal(t, DefaultUserAgent, gotUA)
}

func TestEnsureImageCacheHitSkipsNetwork(t *testing.T) {
	transport := httpmock.NewMockTransport()
	f, store := newTestFetcher(t, transport)

	require.NoError(t, os.WriteFile(store.ImagePath("1"), []byte("cached"), 0644))

	// the URL is unreachable, which must not matter
	animal := lion
	animal.ImageURL = "https://unreachable.invalid/lion.jpg"

	downloaded, err := f.EnsureImage(context.Background(), animal)
	require.NoError(t, err)
	assert.False(t, downloaded)
	assert.Zero(t, transport.GetTotalCallCount())
}

func TestEnsureImageNotFound(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, lionURL, httpmock.NewStringResponder(http.StatusNotFound, "not found"))

	f, store := newTestFetcher(t, transport)

	_, err := f.EnsureImage(context.Background(), lion)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetchFailed))

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.Equal(t, "1", fetchErr.ID)

	assert.Empty(t, dirEntries(t, store.Dir()))
}

func TestEnsureImageTransportError(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, lionURL, httpmock.NewErrorResponder(errors.New("connection refused")))

	f, store := newTestFetcher(t, transport)

	_, err := f.EnsureImage(context.Background(), lion)
	require.ErrorIs(t, err, ErrFetchFailed)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Zero(t, fetchErr.StatusCode)
	assert.Empty(t, dirEntries(t, store.Dir()))
}

func TestEnsureImagePartialBodyLeavesNothing(t *testing.T) {
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		body := io.MultiReader(strings.NewReader("first half"), iotest.ErrReader(errors.New("connection reset")))
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(body),
			Header:     make(http.Header),
			Request:    req,
		}, nil
	})

	f, store := newTestFetcher(t, transport)

	_, err := f.EnsureImage(context.Background(), lion)
	require.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorContains(t, err, "connection reset")

	assert.Empty(t, dirEntries(t, store.Dir()))
}

func TestEnsureImageCancelledContext(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, lionURL, httpmock.NewStringResponder(http.StatusOK, "ok"))

	f, store := newTestFetcher(t, transport)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.EnsureImage(ctx, lion)
	require.Error(t, err)
	assert.Empty(t, dirEntries(t, store.Dir()))
}

func TestEnsureImageConcurrentCallers(t *testing.T) {
	defer goleak.VerifyNone(t)

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, lionURL, httpmock.NewStringResponder(http.StatusOK, "ok"))

	f, store := newTestFetcher(t, transport)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.EnsureImage(context.Background(), lion)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	ok, err := store.HasImage("1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestFetchErrorMessage(t *testing.T) {
	err := &FetchError{ID: "7", StatusCode: 503}
	assert.Equal(t, "failed to fetch image for 7: server returned status 503", err.Error())
}
