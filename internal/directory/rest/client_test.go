package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dropDatabas3/identsync/internal/directory"
)

func TestExistsRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/directory/check" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["email"] != "ada@x.com" {
			t.Errorf("body = %v", in)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"exists": true, "name": "Ada Lovelace"})
	}))
	defer srv.Close()

	res, err := New(srv.URL).Exists(context.Background(), "ada@x.com")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !res.Exists || res.FullName != "Ada Lovelace" {
		t.Fatalf("res = %+v", res)
	}
}

func TestUpsertReportsCreated(t *testing.T) {
	created := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "created": created, "message": "x"})
	}))
	defer srv.Close()
	c := New(srv.URL)

	got, err := c.Upsert(context.Background(), directory.Record{UserID: "u-1", Email: "a@x.com"})
	if err != nil || !got {
		t.Fatalf("first upsert: created=%v err=%v", got, err)
	}
	created = false
	got, err = c.Upsert(context.Background(), directory.Record{UserID: "u-1", Email: "a@x.com"})
	if err != nil || got {
		t.Fatalf("second upsert: created=%v err=%v", got, err)
	}
}

func TestServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Exists(context.Background(), "a@x.com")
	if !errors.Is(err, directory.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestUnreachableHostIsUnavailable(t *testing.T) {
	_, err := New("http://127.0.0.1:1").Exists(context.Background(), "a@x.com")
	if !errors.Is(err, directory.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestClientErrorIsNotUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "missing_field",
			"error_description": "email es requerido",
		})
	}))
	defer srv.Close()

	_, err := New(srv.URL).Exists(context.Background(), "")
	if err == nil || errors.Is(err, directory.ErrUnavailable) {
		t.Fatalf("err = %v, want non-unavailable api error", err)
	}
}

func TestDeleteRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/directory/delete" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]int64{"rows": 1})
	}))
	defer srv.Close()

	rows, err := New(srv.URL).Delete(context.Background(), "u-1")
	if err != nil || rows != 1 {
		t.Fatalf("rows=%d err=%v", rows, err)
	}
}
