package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestS3UploaderFirmaYSube(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("ETag", `"abc123"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	up, err := NewS3Uploader(S3Config{
		Endpoint:     srv.URL,
		Region:       "auto",
		Bucket:       "actas",
		AccessKey:    "AKID",
		SecretKey:    "secret",
		PublicDomain: "https://cdn.example.cl",
	})
	if err != nil {
		t.Fatalf("new uploader: %v", err)
	}

	res, err := up.Upload(context.Background(), UploadInput{Key: "actas/acta_1.pdf", Body: []byte("%PDF-1.3"), ContentType: "application/pdf"})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if gotPath != "/actas/actas/acta_1.pdf" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if !strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential=AKID/") {
		t.Fatalf("unexpected authorization %q", gotAuth)
	}
	if gotBody != "%PDF-1.3" {
		t.Fatalf("unexpected body %q", gotBody)
	}
	if res.URL != "https://cdn.example.cl/actas/acta_1.pdf" || res.ETag != "abc123" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestS3UploaderErrorRemoto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()

	up, err := NewS3Uploader(S3Config{Endpoint: srv.URL, Region: "auto", Bucket: "b", AccessKey: "a", SecretKey: "s"})
	if err != nil {
		t.Fatalf("new uploader: %v", err)
	}
	if _, err := up.Upload(context.Background(), UploadInput{Key: "k", Body: []byte("x")}); err == nil {
		t.Fatalf("expected error on 403")
	}
}

func TestNewUploader(t *testing.T) {
	up, err := NewUploader("noop", S3Config{})
	if err != nil {
		t.Fatalf("noop: %v", err)
	}
	if _, err := up.Upload(context.Background(), UploadInput{}); !errors.Is(err, ErrNoConfigurado) {
		t.Fatalf("expected ErrNoConfigurado, got %v", err)
	}
	if _, err := NewUploader("s3", S3Config{Endpoint: "sin-protocolo"}); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := NewUploader("ftp", S3Config{}); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

func TestS3UploaderCabecerasFirmadas(t *testing.T) {
	var auth, fecha, contenido string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		fecha = r.Header.Get("x-amz-date")
		contenido = r.Header.Get("x-amz-content-sha256")
	}))
	defer srv.Close()

	up, err := NewS3Uploader(S3Config{Endpoint: srv.URL, Region: "us-east-1", Bucket: "b", AccessKey: "AKID", SecretKey: "s"})
	if err != nil {
		t.Fatalf("new uploader: %v", err)
	}
	up.now = func() time.Time { return time.Date(2026, 3, 9, 14, 5, 0, 0, time.UTC) }

	if _, err := up.Upload(context.Background(), UploadInput{Key: "acta.pdf", Body: []byte("x")}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if fecha != "20260309T140500Z" {
		t.Fatalf("unexpected x-amz-date %q", fecha)
	}
	if contenido != sha256Hex([]byte("x")) {
		t.Fatalf("unexpected payload hash %q", contenido)
	}
	if !strings.Contains(auth, "Credential=AKID/20260309/us-east-1/s3/aws4_request") ||
		!strings.Contains(auth, "SignedHeaders="+cabecerasFirmas) {
		t.Fatalf("unexpected authorization %q", auth)
	}
}
