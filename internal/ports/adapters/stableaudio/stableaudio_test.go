package stableaudio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerate_WritesAudio(t *testing.T) {
	t.Parallel()

	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != generatePath {
			t.Errorf("path=%s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" || r.Header.Get("Accept") != "audio/*" {
			t.Errorf("headers=%v", r.Header)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		got = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			got[k] = v[0]
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFFfake"))
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "bgm", "cue_01.wav")
	a := New("sk-test", srv.URL, "wav", 50, WithHTTPClient(srv.Client()))
	if err := a.Generate(context.Background(), "calm piano", 500, out); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	b, err := os.ReadFile(out)
	if err != nil || string(b) != "RIFFfake" {
		t.Fatalf("output=%q err=%v", b, err)
	}
	want := map[string]string{"prompt": "calm piano", "output_format": "wav", "duration": "190.0", "steps": "50"}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("field %s=%q, want %q", k, got[k], v)
		}
	}
}

func TestGenerate_ErrorIsRedacted(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"name":"unauthorized","errors":["bad key sk-test"]}`))
	}))
	defer srv.Close()

	a := New("sk-test", srv.URL, "", 0, WithHTTPClient(srv.Client()))
	err := a.Generate(context.Background(), "x", 10, filepath.Join(t.TempDir(), "a.wav"))
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if strings.Contains(msg, "sk-test") || !strings.Contains(msg, "status 401: unauthorized: bad key [REDACTED]") {
		t.Fatalf("err=%q", msg)
	}
}

func TestGenerate_RequiresKey(t *testing.T) {
	t.Parallel()

	if err := New("", "", "", 0).Generate(context.Background(), "x", 5, "a.wav"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRedactSecrets(t *testing.T) {
	apiKey := "sk-super-secret"
	in := `status 401; Authorization: Bearer sk-super-secret; api_key=sk-super-secret`
	got := redactSecrets(in, apiKey)

	if strings.Contains(got, apiKey) {
		t.Fatalf("expected API key to be redacted, got: %q", got)
	}
	if !strings.Contains(got, "Authorization: [REDACTED]") {
		t.Fatalf("expected authorization header to be redacted, got: %q", got)
	}
	if !strings.Contains(got, "api_key=[REDACTED]") {
		t.Fatalf("expected api_key field to be redacted, got: %q", got)
	}
}
