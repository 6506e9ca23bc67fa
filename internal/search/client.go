// Package search wraps the Elasticsearch backend behind domain-level
// index, delete and search operations. The relational database remains the
// source of truth; the index is a read-optimised projection of it, so every
// write here is a full-document replace keyed by the record's primary key.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/ttahub/searchsync/internal/searchconfig"
)

// Error types for search operations.
var (
	// ErrNotEnabled means search support is not configured for this
	// process. Callers must check the resolved configuration first.
	ErrNotEnabled = errors.New("search support is not enabled in the application")
	// ErrBackendUnavailable means the backend could not be reached or
	// answered with a server error. Safe to retry.
	ErrBackendUnavailable = errors.New("search backend unavailable")
)

// Options tunes client construction.
type Options struct {
	// Region used for request signing when the configuration carries
	// credentials. Defaults to us-east-1.
	Region string
	// Transport is the base HTTP transport. Defaults to
	// http.DefaultTransport. Signing wraps around it.
	Transport http.RoundTripper
}

// Client is a configured handle to the search backend.
type Client struct {
	es *elasticsearch.Client
}

// NewClient builds a Client from resolved configuration. It fails with
// ErrNotEnabled when the backend is disabled. When credentials are present
// the client signs every request; otherwise it connects unauthenticated.
// No retry or pooling lives here.
func NewClient(cfg searchconfig.Config, opts Options) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrNotEnabled
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		region := opts.Region
		if region == "" {
			region = "us-east-1"
		}
		var provider aws.CredentialsProvider = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, "")
		transport = NewSigV4Transport(transport, provider, region)
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Node},
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("search: create client: %w", err)
	}
	return &Client{es: es}, nil
}

// Index upserts a document, replacing any previous version under the same
// id. The pipeline, when non-empty, names the backend-side ingest pipeline
// to run. refresh=true makes the write immediately visible to searches.
func (c *Client) Index(ctx context.Context, index, id string, body any, pipeline string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("search: encode document %s/%s: %w", index, id, err)
	}

	reqOpts := []func(*esapi.IndexRequest){
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(id),
		c.es.Index.WithRefresh("true"),
	}
	if pipeline != "" {
		reqOpts = append(reqOpts, c.es.Index.WithPipeline(pipeline))
	}

	res, err := c.es.Index(index, bytes.NewReader(payload), reqOpts...)
	if err != nil {
		return fmt.Errorf("search: index %s/%s: %w: %w", index, id, ErrBackendUnavailable, err)
	}
	defer res.Body.Close()

	return c.checkResponse(res, fmt.Sprintf("index %s/%s", index, id))
}

// Delete removes a document if it exists. A missing document is not an
// error: remove jobs may be redelivered after the document is already gone.
func (c *Client) Delete(ctx context.Context, index, id string) error {
	res, err := c.es.Delete(index, id,
		c.es.Delete.WithContext(ctx),
		c.es.Delete.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("search: delete %s/%s: %w: %w", index, id, ErrBackendUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, res.Body)
		return nil
	}
	return c.checkResponse(res, fmt.Sprintf("delete %s/%s", index, id))
}

// Search runs a query-string search against an index and returns the raw
// backend response for the caller to interpret.
func (c *Client) Search(ctx context.Context, index, text string) (json.RawMessage, error) {
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithQuery(text),
	)
	if err != nil {
		return nil, fmt.Errorf("search: query %s: %w: %w", index, ErrBackendUnavailable, err)
	}
	defer res.Body.Close()

	if err := c.checkError(res, fmt.Sprintf("query %s", index)); err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("search: read response for %s: %w", index, err)
	}
	return json.RawMessage(raw), nil
}

// CreateIndex creates an index. An index that already exists is left alone.
func (c *Client) CreateIndex(ctx context.Context, index string) error {
	res, err := c.es.Indices.Create(index, c.es.Indices.Create.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("search: create index %s: %w: %w", index, ErrBackendUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusBadRequest {
		// resource_already_exists_exception
		io.Copy(io.Discard, res.Body)
		return nil
	}
	return c.checkResponse(res, fmt.Sprintf("create index %s", index))
}

// DeleteIndex drops an index. A missing index is ignored.
func (c *Client) DeleteIndex(ctx context.Context, index string) error {
	res, err := c.es.Indices.Delete([]string{index},
		c.es.Indices.Delete.WithContext(ctx),
		c.es.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return fmt.Errorf("search: delete index %s: %w: %w", index, ErrBackendUnavailable, err)
	}
	defer res.Body.Close()

	return c.checkResponse(res, fmt.Sprintf("delete index %s", index))
}

// PutMapping installs field mappings on an existing index.
func (c *Client) PutMapping(ctx context.Context, index string, mapping any) error {
	payload, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("search: encode mapping for %s: %w", index, err)
	}

	res, err := c.es.Indices.PutMapping([]string{index}, bytes.NewReader(payload),
		c.es.Indices.PutMapping.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("search: put mapping %s: %w: %w", index, ErrBackendUnavailable, err)
	}
	defer res.Body.Close()

	return c.checkResponse(res, fmt.Sprintf("put mapping %s", index))
}

// PutPipeline installs (or replaces) a named ingest pipeline.
func (c *Client) PutPipeline(ctx context.Context, name string, pipeline any) error {
	payload, err := json.Marshal(pipeline)
	if err != nil {
		return fmt.Errorf("search: encode pipeline %s: %w", name, err)
	}

	res, err := c.es.Ingest.PutPipeline(name, bytes.NewReader(payload),
		c.es.Ingest.PutPipeline.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("search: put pipeline %s: %w: %w", name, ErrBackendUnavailable, err)
	}
	defer res.Body.Close()

	return c.checkResponse(res, fmt.Sprintf("put pipeline %s", name))
}

// checkResponse drains the body and converts an error response into an
// error value.
func (c *Client) checkResponse(res *esapi.Response, op string) error {
	if err := c.checkError(res, op); err != nil {
		return err
	}
	io.Copy(io.Discard, res.Body)
	return nil
}

func (c *Client) checkError(res *esapi.Response, op string) error {
	if !res.IsError() {
		return nil
	}

	detail, _ := io.ReadAll(res.Body)
	if res.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("search: %s: %w: [%s] %s", op, ErrBackendUnavailable, res.Status(), detail)
	}
	return fmt.Errorf("search: %s: [%s] %s", op, res.Status(), detail)
}
