package gcs_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/appscout/appscout/internal/blob/gcs"
)

// newTestStore builds a Store whose client talks to a local test server
// instead of the GCS API.
func newTestStore(t *testing.T, handler http.Handler) *gcs.Store {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)

	store, err := gcs.NewWithClient(client, gcs.Config{Bucket: "test-bucket"})
	require.NoError(t, err)
	return store
}

func TestNewWithClientValidation(t *testing.T) {
	t.Parallel()

	t.Run("MissingClient", func(t *testing.T) {
		t.Parallel()
		_, err := gcs.NewWithClient(nil, gcs.Config{Bucket: "test-bucket"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "storage client is required")
	})

	t.Run("MissingBucket", func(t *testing.T) {
		t.Parallel()
		client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
		require.NoError(t, err)
		_, err = gcs.NewWithClient(client, gcs.Config{})
		require.Error(t, err)
		require.Contains(t, err.Error(), "bucket name is required")
	})
}

func TestPutObjectUploadsAndReturnsURI(t *testing.T) {
	t.Parallel()

	body := "App Name,Email\nTorch,dev@example.com\n"

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		require.Equal(t, "exports/Leads_flashlight_2024-03-09.csv", r.URL.Query().Get("name"))

		payload, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(payload), body)

		fmt.Fprintln(w, `{"name": "exports/Leads_flashlight_2024-03-09.csv"}`)
	})

	store := newTestStore(t, handler)

	uri, err := store.PutObject(context.Background(),
		"exports/Leads_flashlight_2024-03-09.csv", "text/csv", strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, "gs://test-bucket/exports/Leads_flashlight_2024-03-09.csv", uri)
}

func TestPutObjectRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	store := newTestStore(t, handler)

	_, err := store.PutObject(context.Background(), "  ", "text/csv", strings.NewReader("x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "path is required")
}

func TestPutObjectSurfacesUploadError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	store := newTestStore(t, handler)

	_, err := store.PutObject(context.Background(), "exports/leads.csv", "text/csv", strings.NewReader("x"))
	require.Error(t, err)
}
