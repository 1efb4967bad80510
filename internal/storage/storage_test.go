package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Crowd_Conscious/internal/config"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestSniff(t *testing.T) {
	ct, ext, err := Sniff(pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, "png", ext)

	_, _, err = Sniff([]byte("<html><body>hi</body></html>"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestObjectPath(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	assert.Equal(t, "42/1700000000123.png", ObjectPath(42, "png", now))
}

func TestSupabaseStore(t *testing.T) {
	var gotDelete map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, "key", r.Header.Get("apikey"))
		switch r.Method {
		case http.MethodPost:
			assert.Equal(t, "/storage/v1/object/avatars/1/2.png", r.URL.Path)
			assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
			b, _ := io.ReadAll(r.Body)
			assert.True(t, bytes.Equal(pngHeader, b))
			w.WriteHeader(http.StatusOK)
		case http.MethodDelete:
			assert.Equal(t, "/storage/v1/object/avatars", r.URL.Path)
			_ = json.NewDecoder(r.Body).Decode(&gotDelete)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	s := NewSupabaseStore(srv.URL+"/", "key", srv.Client())
	ctx := context.Background()
	require.NoError(t, s.Upload(ctx, "avatars", "1/2.png", pngHeader, "image/png"))
	require.NoError(t, s.Delete(ctx, "avatars", "1/2.png"))
	assert.Equal(t, []string{"1/2.png"}, gotDelete["prefixes"])
	assert.Equal(t, srv.URL+"/storage/v1/object/public/avatars/1/2.png", s.PublicURL("avatars", "1/2.png"))
}

func TestSupabaseStoreErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"denied"}`))
	}))
	defer srv.Close()

	err := NewSupabaseStore(srv.URL, "key", nil).Upload(context.Background(), "b", "p.png", pngHeader, "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{Backend: "s3"})
	assert.Error(t, err)
	_, err = New(context.Background(), config.StorageConfig{Backend: "supabase"})
	assert.Error(t, err)
}
