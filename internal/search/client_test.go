package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ttahub/searchsync/internal/searchconfig"
)

// newBackend starts a fake backend and returns it plus a client pointed at
// it. The handler must set the product header or the client library rejects
// the response.
func newBackend(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *Client) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(searchconfig.Config{Enabled: true, Node: srv.URL}, Options{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return srv, client
}

func TestNewClient_Disabled(t *testing.T) {
	_, err := NewClient(searchconfig.Config{}, Options{})
	if !errors.Is(err, ErrNotEnabled) {
		t.Fatalf("NewClient error = %v, want ErrNotEnabled", err)
	}
}

func TestIndex_RequestShape(t *testing.T) {
	var method, path, refresh, pipeline string
	var body map[string]any

	_, client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		refresh = r.URL.Query().Get("refresh")
		pipeline = r.URL.Query().Get("pipeline")
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"result":"created"}`))
	})

	err := client.Index(context.Background(), "activity_report", "1234",
		map[string]any{"context": "quarterly review"}, "ActivityReport")
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if path != "/activity_report/_doc/1234" {
		t.Errorf("path = %q, want /activity_report/_doc/1234", path)
	}
	if refresh != "true" {
		t.Errorf("refresh = %q, want true", refresh)
	}
	if pipeline != "ActivityReport" {
		t.Errorf("pipeline = %q, want ActivityReport", pipeline)
	}
	if body["context"] != "quarterly review" {
		t.Errorf("body = %v, want document projection", body)
	}
}

func TestIndex_NoPipelineParamWhenEmpty(t *testing.T) {
	var query string
	_, client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Write([]byte(`{"result":"updated"}`))
	})

	if err := client.Index(context.Background(), "file", "1", map[string]any{}, ""); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if strings.Contains(query, "pipeline") {
		t.Errorf("query = %q, want no pipeline param", query)
	}
}

func TestIndex_ServerError(t *testing.T) {
	_, client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"overloaded"}`))
	})

	err := client.Index(context.Background(), "activity_report", "1", map[string]any{}, "")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("Index error = %v, want ErrBackendUnavailable", err)
	}
}

func TestDelete_MissingDocumentIsNotAnError(t *testing.T) {
	_, client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"result":"not_found"}`))
	})

	if err := client.Delete(context.Background(), "activity_report", "999"); err != nil {
		t.Fatalf("Delete of missing document: %v, want nil", err)
	}
}

func TestDelete_RequestShape(t *testing.T) {
	var method, path, refresh string
	_, client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		refresh = r.URL.Query().Get("refresh")
		w.Write([]byte(`{"result":"deleted"}`))
	})

	if err := client.Delete(context.Background(), "file", "42"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if method != http.MethodDelete {
		t.Errorf("method = %s, want DELETE", method)
	}
	if path != "/file/_doc/42" {
		t.Errorf("path = %q, want /file/_doc/42", path)
	}
	if refresh != "true" {
		t.Errorf("refresh = %q, want true", refresh)
	}
}

func TestSearch_RawPassthrough(t *testing.T) {
	var index, q string
	_, client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		index = strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), "/_search")
		q = r.URL.Query().Get("q")
		w.Write([]byte(`{"hits":{"total":{"value":1}}}`))
	})

	raw, err := client.Search(context.Background(), "activity_report", "professional development")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if index != "activity_report" {
		t.Errorf("index = %q, want activity_report", index)
	}
	if q != "professional development" {
		t.Errorf("q = %q, want query text", q)
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("response is not raw JSON passthrough: %v", err)
	}
	if _, ok := parsed["hits"]; !ok {
		t.Errorf("response = %s, want backend body unmodified", raw)
	}
}

func TestCreateIndex_AlreadyExists(t *testing.T) {
	_, client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"resource_already_exists_exception"}}`))
	})

	if err := client.CreateIndex(context.Background(), "activity_report"); err != nil {
		t.Fatalf("CreateIndex on existing index: %v, want nil", err)
	}
}

func TestSignedClient_AddsAuthorization(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{"result":"created"}`))
	}))
	defer srv.Close()

	client, err := NewClient(searchconfig.Config{
		Enabled:     true,
		Node:        srv.URL,
		AccessKeyID: "AKIAEXAMPLE",
		SecretKey:   "sekret",
	}, Options{Region: "us-gov-west-1"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if err := client.Index(context.Background(), "file", "1", map[string]any{"a": 1}, ""); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if !strings.HasPrefix(auth, "AWS4-HMAC-SHA256") {
		t.Errorf("Authorization = %q, want SigV4 signature", auth)
	}
}
