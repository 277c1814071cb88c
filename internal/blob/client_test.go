package blob

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadSendsObject(t *testing.T) {
	var (
		gotPath, gotKey, gotAuth, gotType, gotUpsert string
		gotBody                                      []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotUpsert = r.Header.Get("x-upsert")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"Key":"proof-photos/x"}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "service-key")
	err := c.Upload(context.Background(), "proof-photos", "s123/beach_cleanup/1700000000000_ab12cd34.jpeg", []byte{1, 2, 3}, "image/jpeg")
	require.NoError(t, err)

	assert.Equal(t, "/storage/v1/object/proof-photos/s123/beach_cleanup/1700000000000_ab12cd34.jpeg", gotPath)
	assert.Equal(t, "service-key", gotKey)
	assert.Equal(t, "Bearer service-key", gotAuth)
	assert.Equal(t, "image/jpeg", gotType)
	assert.Equal(t, "true", gotUpsert)
	assert.Equal(t, []byte{1, 2, 3}, gotBody)
}

func TestUploadReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bucket not found", http.StatusNotFound)
	}))
	defer srv.Close()

	err := New(srv.URL, "k").Upload(context.Background(), "missing", "a.png", []byte("x"), "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload failed (404)")
	assert.Contains(t, err.Error(), "bucket not found")
}

func TestUploadRequiresPath(t *testing.T) {
	err := New("http://unused", "k").Upload(context.Background(), "proof-photos", "", nil, "image/png")
	assert.Error(t, err)
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	data, ct, err := New(srv.URL, "k").Download(context.Background(), "proof-photos", "s1/e/1.png")
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "image/png", ct)

	_, _, err = New(srv.URL, "wrong").Download(context.Background(), "proof-photos", "s1/e/1.png")
	assert.Error(t, err)
}
