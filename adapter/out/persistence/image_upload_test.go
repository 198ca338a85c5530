package persistence

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type imageFixture struct {
	srv         *httptest.Server
	tokenCalls  atomic.Int32
	uploadCalls atomic.Int32
	lastType    string
	lastPNG     []byte
	expireToken bool
}

func newImageFixture(t *testing.T) *imageFixture {
	t.Helper()
	f := &imageFixture{}

	mux := http.NewServeMux()
	mux.HandleFunc("/open-apis/auth/v3/tenant_access_token/internal", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		io.WriteString(w, `{"code": 0, "msg": "ok", "tenant_access_token": "t-abc", "expire": 7200}`)
	})
	mux.HandleFunc("/open-apis/im/v1/images", func(w http.ResponseWriter, r *http.Request) {
		f.uploadCalls.Add(1)
		if f.expireToken && f.uploadCalls.Load() == 1 {
			io.WriteString(w, `{"code": 99991663, "msg": "token expired"}`)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			io.WriteString(w, `{"code": 1, "msg": "bad multipart"}`)
			return
		}
		f.lastType = r.FormValue("image_type")
		file, _, err := r.FormFile("image")
		if err != nil {
			io.WriteString(w, `{"code": 1, "msg": "missing image"}`)
			return
		}
		defer file.Close()
		f.lastPNG, _ = io.ReadAll(file)
		io.WriteString(w, `{"code": 0, "msg": "ok", "data": {"image_key": "img_v3_key"}}`)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func newImageTestClient(t *testing.T, f *imageFixture) *BitableClient {
	t.Helper()
	client := NewBitableClient("app-id", "app-secret", f.srv.Client(), testLogger())
	client.baseURL = f.srv.URL
	client.retryCfg.BaseDelay = time.Millisecond
	return client
}

func TestUploadImage(t *testing.T) {
	f := newImageFixture(t)
	client := newImageTestClient(t, f)

	png := []byte("\x89PNG fake cover")
	key, err := client.UploadImage(context.Background(), png)
	if err != nil {
		t.Fatalf("UploadImage: %v", err)
	}
	if key != "img_v3_key" {
		t.Errorf("image key = %q, want img_v3_key", key)
	}
	if f.lastType != "message" {
		t.Errorf("image_type = %q, want message", f.lastType)
	}
	if !bytes.Equal(f.lastPNG, png) {
		t.Errorf("uploaded bytes differ: %d vs %d", len(f.lastPNG), len(png))
	}
}

func TestUploadImageRefreshesExpiredToken(t *testing.T) {
	f := newImageFixture(t)
	f.expireToken = true
	client := newImageTestClient(t, f)

	key, err := client.UploadImage(context.Background(), []byte("png"))
	if err != nil {
		t.Fatalf("UploadImage after token refresh: %v", err)
	}
	if key != "img_v3_key" {
		t.Errorf("image key = %q", key)
	}
	if f.uploadCalls.Load() != 2 {
		t.Errorf("upload calls = %d, want 2 (retry after refresh)", f.uploadCalls.Load())
	}
	if f.tokenCalls.Load() < 2 {
		t.Errorf("token calls = %d, want a forced refresh", f.tokenCalls.Load())
	}
}

func TestUploadImageRejectedCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/open-apis/auth/v3/tenant_access_token/internal" {
			io.WriteString(w, `{"code": 0, "msg": "ok", "tenant_access_token": "t-abc", "expire": 7200}`)
			return
		}
		io.WriteString(w, `{"code": 234001, "msg": "image too large"}`)
	}))
	defer srv.Close()

	client := NewBitableClient("app-id", "app-secret", srv.Client(), testLogger())
	client.baseURL = srv.URL

	if _, err := client.UploadImage(context.Background(), []byte("png")); err == nil {
		t.Fatal("expected error for rejected upload")
	}
}
