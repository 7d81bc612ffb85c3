// Package rest is a record store backed by the low-code backend's HTTP API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/BDNK1/lowflow/runtime"
)

// Config holds the REST store configuration with declarative tags
type Config struct {
	BaseURL     string        `yaml:"base_url" validate:"required,url_format"`
	Token       string        `yaml:"token"`
	Timeout     time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
	MaxRetries  int           `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
	RetryWaitMS int           `yaml:"retry_wait_ms" default:"100" validate:"gte=0,lte=10000"`
	Debug       bool          `yaml:"debug" default:"false"`
}

// Store talks to the backend:
//
//	GET    /projects/{projectID}
//	GET    /projects/{projectID}/fields
//	GET    /collections/{collectionID}/records?filter=<json>
//	POST   /collections/{collectionID}/records
//	PATCH  /collections/{collectionID}/records/{key}
//	DELETE /collections/{collectionID}/records/{key}
type Store struct {
	client *resty.Client
}

var _ runtime.RecordStore = &Store{}

// New validates the config, applying defaults first, and builds the client.
func New(cfg Config) (*Store, error) {
	if err := runtime.PrepareConfig(&cfg); err != nil {
		return nil, fmt.Errorf("rest store: %w", err)
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(time.Duration(cfg.RetryWaitMS) * time.Millisecond).
		SetHeader("Accept", "application/json").
		SetDebug(cfg.Debug)
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &Store{client: client}, nil
}

func (s *Store) GetProject(ctx context.Context, projectID string) (*runtime.Project, error) {
	var project runtime.Project
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("projectID", projectID).
		SetResult(&project).
		Get("/projects/{projectID}")
	if err := check(resp, err, "get project "+projectID); err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *Store) ListFields(ctx context.Context, projectID string) ([]runtime.Field, error) {
	var fields []runtime.Field
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("projectID", projectID).
		SetResult(&fields).
		Get("/projects/{projectID}/fields")
	if err := check(resp, err, "list fields of "+projectID); err != nil {
		return nil, err
	}
	return fields, nil
}

// ListRecords sends the filter to the backend and applies it again to the
// response, so backends that ignore it still give correct results.
func (s *Store) ListRecords(ctx context.Context, collectionID string, filter runtime.Filter) ([]map[string]any, error) {
	req := s.client.R().
		SetContext(ctx).
		SetPathParam("collectionID", collectionID)
	if len(filter) > 0 {
		data, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("rest store: encode filter: %w", err)
		}
		req.SetQueryParam("filter", string(data))
	}

	var rows []map[string]any
	resp, err := req.SetResult(&rows).Get("/collections/{collectionID}/records")
	if err := check(resp, err, "list records of "+collectionID); err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if filter.Match(row) {
			out = append(out, row)
		}
	}
	return out, nil
}

// InsertRecord returns the record echoed by the backend, or nil when the
// response has no body. The body is read as JSON whatever its Content-Type.
func (s *Store) InsertRecord(ctx context.Context, collectionID string, fields map[string]any) (map[string]any, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("collectionID", collectionID).
		SetBody(fields).
		Post("/collections/{collectionID}/records")
	if err := check(resp, err, "insert into "+collectionID); err != nil {
		return nil, err
	}

	body := bytes.TrimSpace(resp.Body())
	if len(body) == 0 {
		return nil, nil
	}
	var created map[string]any
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("rest store: insert into %s: decode response: %w", collectionID, err)
	}
	if len(created) == 0 {
		return nil, nil
	}
	return created, nil
}

func (s *Store) UpdateRecord(ctx context.Context, collectionID, primaryKey string, fields map[string]any) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"collectionID": collectionID, "key": primaryKey}).
		SetBody(fields).
		Patch("/collections/{collectionID}/records/{key}")
	return check(resp, err, fmt.Sprintf("update %s/%s", collectionID, primaryKey))
}

func (s *Store) DeleteRecord(ctx context.Context, collectionID, primaryKey string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"collectionID": collectionID, "key": primaryKey}).
		Delete("/collections/{collectionID}/records/{key}")
	return check(resp, err, fmt.Sprintf("delete %s/%s", collectionID, primaryKey))
}

func check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("rest store: %s: %w", op, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("rest store: %s: %w", op, runtime.ErrRecordNotFound)
	}
	if resp.IsError() {
		return fmt.Errorf("rest store: %s: %s", op, resp.Status())
	}
	return nil
}
