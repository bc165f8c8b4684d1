package imgsync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDownload_Success(t *testing.T) {
	t.Parallel()
	body := makeJPEG(64, 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	res, err := download(context.Background(), nil, srv.Client(), srv.URL+"/image.jpg", DownloadOpts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q, want image/jpeg", res.MIMEType)
	}
	if len(res.Data) != len(body) {
		t.Errorf("len(Data) = %d, want %d", len(res.Data), len(body))
	}
}

func TestDownload_ContentTypeWithParams(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg; charset=utf-8")
		_, _ = w.Write(makeJPEG(8, 8))
	}))
	defer srv.Close()

	res, err := download(context.Background(), nil, srv.Client(), srv.URL+"/photo.jpg", DownloadOpts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q, want image/jpeg (params stripped)", res.MIMEType)
	}
}

func TestDownload_404(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	res, err := download(context.Background(), nil, srv.Client(), srv.URL+"/missing.jpg", DownloadOpts{})
	if err == nil {
		t.Fatalf("expected error for 404, got %+v", res)
	}
	if !strings.Contains(err.Error(), "status 404") {
		t.Errorf("error = %v, want status 404", err)
	}
}

func TestDownload_MaxBytesEnforcement(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte(strings.Repeat("X", 200)))
	}))
	defer srv.Close()

	_, err := download(context.Background(), nil, srv.Client(), srv.URL+"/big.jpg", DownloadOpts{MaxBytes: 100})
	if !errors.Is(err, errTooLarge) {
		t.Errorf("expected errTooLarge, got %v", err)
	}

	res, err := download(context.Background(), nil, srv.Client(), srv.URL+"/big.jpg", DownloadOpts{MaxBytes: 200})
	if err != nil || len(res.Data) != 200 {
		t.Errorf("body at the cap: %v, %v", res, err)
	}
}

func TestDownload_StealthFallback(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(makeJPEG(8, 8))
	}))
	defer srv.Close()

	// Stealth client with a broken transport → falls back to regular.
	stealth := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("tls fingerprint rejected")
	})}
	res, err := download(context.Background(), stealth, srv.Client(), srv.URL+"/photo.jpg", DownloadOpts{})
	if err != nil {
		t.Fatalf("expected fallback to the regular client, got %v", err)
	}
	if len(res.Data) == 0 {
		t.Error("Data is empty")
	}
}

func TestDownload_StealthFirst(t *testing.T) {
	t.Parallel()
	var regularHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		regularHits++
		http.Error(w, "should not be called", http.StatusTeapot)
	}))
	defer srv.Close()

	stealth := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		rec := httptest.NewRecorder()
		rec.Header().Set("Content-Type", "image/jpeg")
		_, _ = rec.Write([]byte("jpegbytes"))
		return rec.Result(), nil
	})}
	res, err := download(context.Background(), stealth, srv.Client(), srv.URL+"/photo.jpg", DownloadOpts{Token: "secret"})
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Data) != "jpegbytes" || regularHits != 0 {
		t.Errorf("data %q, regular hits %d", res.Data, regularHits)
	}
}

func TestDownload_Cancelled(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := download(ctx, nil, srv.Client(), srv.URL+"/x.jpg", DownloadOpts{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
