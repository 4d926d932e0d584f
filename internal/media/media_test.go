package media

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rajivgeraev/skillswap-api/internal/config"
	"github.com/rajivgeraev/skillswap-api/internal/models"
)

func TestObjectKeySanitizesName(t *testing.T) {
	key := ObjectKey("attachments", "../my photo?.png")
	if !strings.HasPrefix(key, "attachments/") || !strings.HasSuffix(key, "-my_photo_.png") {
		t.Fatalf("unexpected key %q", key)
	}
	if ObjectKey("a", "x") == ObjectKey("a", "x") {
		t.Fatalf("keys must be unique")
	}
}

func TestKindOf(t *testing.T) {
	cases := map[string]models.AttachmentType{
		"image/png":       models.AttachmentImage,
		"video/mp4":       models.AttachmentVideo,
		"application/pdf": models.AttachmentDocument,
		"":                models.AttachmentDocument,
	}
	for ct, want := range cases {
		if got := KindOf(ct); got != want {
			t.Fatalf("%q: expected %s, got %s", ct, want, got)
		}
	}
}

func TestAttachWithMemory(t *testing.T) {
	m := NewMemory("https://cdn.test")
	att, err := Attach(context.Background(), m, "notes.pdf", "application/pdf", 5, strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if att.Type != models.AttachmentDocument || att.Name != "notes.pdf" || att.Size != 5 || att.ID == "" {
		t.Fatalf("unexpected attachment %+v", att)
	}
	key := strings.TrimPrefix(att.URL, "https://cdn.test/")
	body, ct, ok := m.Object(key)
	if !ok || string(body) != "hello" || ct != "application/pdf" {
		t.Fatalf("object not stored: %q %q %v", body, ct, ok)
	}

	if _, err := Attach(context.Background(), m, "big.bin", "", MaxUploadSize+1, strings.NewReader("")); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected too large, got %v", err)
	}
	if m.Len() != 1 {
		t.Fatalf("rejected upload must not be stored")
	}
}

func TestCloudinaryUploadParamsAreSigned(t *testing.T) {
	c, err := NewCloudinary(config.CloudinaryConfig{
		CloudName: "demo", APIKey: "key", APISecret: "secret",
		UploadFolder: "skillswap", UploadPreset: "preset",
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	params, err := c.UploadParams("")
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	sum := sha1.Sum([]byte("folder=skillswap&timestamp=1700000000secret"))
	if params["signature"] != hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected signature %q", params["signature"])
	}
	if params["folder"] != "skillswap" || params["api_key"] != "key" || params["cloud_name"] != "demo" {
		t.Fatalf("unexpected params %+v", params)
	}
}

func TestS3UploadPutsObject(t *testing.T) {
	var (
		mu      sync.Mutex
		method  string
		path    string
		ctype   string
		payload []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, ctype, payload = r.Method, r.URL.Path, r.Header.Get("Content-Type"), body
		mu.Unlock()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	up, err := NewS3(context.Background(), config.S3Config{
		Bucket: "bkt", Region: "us-east-1", Endpoint: srv.URL, UsePathStyle: true,
		AccessKeyID: "AKIA", SecretAccessKey: "SECRET",
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	url, err := up.Upload(context.Background(), "photo.png", "image/png", strings.NewReader("pixels"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut || !strings.HasPrefix(path, "/bkt/attachments/") {
		t.Fatalf("unexpected request %s %s", method, path)
	}
	if ctype != "image/png" || !bytes.Contains(payload, []byte("pixels")) {
		t.Fatalf("unexpected object %q %q", ctype, payload)
	}
	if url != srv.URL+path {
		t.Fatalf("expected url %q, got %q", srv.URL+path, url)
	}
}
