package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkgerrors "liverun/pkg/errors"
)

func TestLanguages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/languages" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":10000,"message":"Success","data":{"languages":[{"id":"c","name":"C","compiled":true}]}}`))
	}))
	defer srv.Close()

	langs, err := New(srv.URL+"/", time.Second).Languages(context.Background())
	if err != nil {
		t.Fatalf("languages: %v", err)
	}
	if len(langs) != 1 || langs[0].ID != "c" || !langs[0].Compiled {
		t.Fatalf("langs = %+v", langs)
	}
}

func TestLanguagesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":10006,"message":"slow down"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Languages(context.Background())
	if !pkgerrors.Is(err, pkgerrors.TooManyRequests) {
		t.Fatalf("err = %v", err)
	}
}

func TestLanguagesNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := New(srv.URL, time.Second).Languages(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
