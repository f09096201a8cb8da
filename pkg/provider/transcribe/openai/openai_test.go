package openai_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/speechset/speechset/pkg/provider/transcribe"
	"github.com/speechset/speechset/pkg/provider/transcribe/openai"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := openai.New(""); err == nil {
		t.Fatal("expected an error for an empty API key")
	}
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth, gotModel, gotLanguage, gotFileName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		if _, header, err := r.FormFile("file"); err != nil {
			t.Errorf("read file part: %v", err)
		} else {
			gotFileName = header.Filename
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":" Quick brown fox. "}`)
	}))
	defer srv.Close()

	p, err := openai.New("sk-test", openai.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := p.Transcribe(context.Background(), transcribe.Clip{
		FileName: "take_001.wav",
		Data:     []byte("RIFF..."),
	})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if result.Text != "Quick brown fox." {
		t.Errorf("Text = %q, want trimmed transcript", result.Text)
	}
	if result.Model != "whisper-1" {
		t.Errorf("Model = %q, want the whisper-1 default", result.Model)
	}
	if gotPath != "/audio/transcriptions" {
		t.Errorf("path = %q, want /audio/transcriptions", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want bearer auth", gotAuth)
	}
	if gotModel != "whisper-1" {
		t.Errorf("model field = %q, want whisper-1", gotModel)
	}
	if gotLanguage != "" {
		t.Errorf("language field = %q, must be omitted without a hint", gotLanguage)
	}
	if gotFileName != "take_001.wav" {
		t.Errorf("file name = %q, want take_001.wav", gotFileName)
	}
}

func TestTranscribe_ModelAndLanguage(t *testing.T) {
	t.Parallel()

	var gotModel, gotLanguage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(32 << 20)
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		io.WriteString(w, `{"text":"ok"}`)
	}))
	defer srv.Close()

	p, err := openai.New("sk-test", openai.WithBaseURL(srv.URL), openai.WithModel("gpt-4o-transcribe"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := p.Transcribe(context.Background(), transcribe.Clip{FileName: "a.wav", Language: "ar"})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if gotModel != "gpt-4o-transcribe" {
		t.Errorf("model field = %q, want the override", gotModel)
	}
	if gotLanguage != "ar" {
		t.Errorf("language field = %q, want ar", gotLanguage)
	}
	if result.Model != "gpt-4o-transcribe" {
		t.Errorf("Model = %q, want the override", result.Model)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := openai.New("sk-test", openai.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = p.Transcribe(context.Background(), transcribe.Clip{FileName: "a.wav"})
	if !errors.Is(err, transcribe.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable for http 503", err)
	}
}

func TestTranscribe_AuthError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid api key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := openai.New("sk-bad", openai.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = p.Transcribe(context.Background(), transcribe.Clip{FileName: "a.wav"})
	if err == nil {
		t.Fatal("expected an error for http 401")
	}
	if errors.Is(err, transcribe.ErrUnavailable) {
		t.Errorf("err = %v, a bad key is not retryable and must not be ErrUnavailable", err)
	}
}

func TestTestConnection(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		io.WriteString(w, `{"data":[]}`)
	}))
	defer srv.Close()

	p, err := openai.New("sk-test", openai.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.TestConnection(context.Background()); err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
	if gotPath != "/models" {
		t.Errorf("path = %q, want /models", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want bearer auth", gotAuth)
	}
}

func TestTestConnection_AuthError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid api key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := openai.New("sk-bad", openai.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = p.TestConnection(context.Background())
	if err == nil {
		t.Fatal("expected an error for http 401")
	}
	if errors.Is(err, transcribe.ErrUnavailable) {
		t.Errorf("err = %v, must not be ErrUnavailable", err)
	}
}

func TestTestConnection_Unreachable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	p, err := openai.New("sk-test", openai.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.TestConnection(context.Background()); !errors.Is(err, transcribe.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}
