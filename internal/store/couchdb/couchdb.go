// Package couchdb implements the document store against a CouchDB database
// over its REST API.
package couchdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"magpie/internal/model"
	"magpie/internal/store"
)

// Client talks to a single CouchDB database.
type Client struct {
	baseURL    string
	database   string
	username   string
	password   string
	httpClient *http.Client
	log        zerolog.Logger
}

func New(baseURL, database, username, password string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		database:   database,
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

func (c *Client) docURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(c.database), url.PathEscape(key))
}

func (c *Client) do(ctx context.Context, method, u string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}

func (c *Client) doJSON(ctx context.Context, method, u string, doc any) (*http.Response, error) {
	var body io.Reader
	contentType := ""
	if doc != nil {
		b, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.do(ctx, method, u, body, contentType)
}

// statusErr maps CouchDB status codes onto the store error taxonomy.
func statusErr(resp *http.Response, what string) error {
	switch resp.StatusCode {
	case http.StatusConflict:
		return store.ErrConflict
	case http.StatusNotFound:
		return store.ErrNotFound
	}
	return errors.Errorf("couchdb %s: status %d", what, resp.StatusCode)
}

type writeResponse struct {
	OK  bool   `json:"ok"`
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

func (c *Client) Insert(ctx context.Context, key string, doc model.Document) (string, error) {
	resp, err := c.doJSON(ctx, http.MethodPut, c.docURL(key), doc)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", statusErr(resp, "insert "+key)
	}
	var out writeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Rev, nil
}

func (c *Client) Get(ctx context.Context, key string) (model.Document, string, error) {
	resp, err := c.do(ctx, http.MethodGet, c.docURL(key), nil, "")
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, "", statusErr(resp, "get "+key)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	doc, err := model.DecodeDocument(b)
	if err != nil {
		return nil, "", errors.Wrapf(err, "decode %s", key)
	}
	rev := doc.Str("_rev")
	delete(doc, "_id")
	delete(doc, "_rev")
	return doc, rev, nil
}

func (c *Client) Save(ctx context.Context, key, rev string, doc model.Document) (string, error) {
	body := model.Document{}
	for k, v := range doc {
		body[k] = v
	}
	body["_rev"] = rev
	resp, err := c.doJSON(ctx, http.MethodPut, c.docURL(key), body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", statusErr(resp, "save "+key)
	}
	var out writeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Rev, nil
}

func (c *Client) Delete(ctx context.Context, key, rev string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.docURL(key)+"?rev="+url.QueryEscape(rev), nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return statusErr(resp, "delete "+key)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) FindAccountsByHandle(ctx context.Context, handle string) ([]model.Document, error) {
	return c.view(ctx, "users", "screenName", handle, 0)
}

func (c *Client) PendingBackups(ctx context.Context, kind model.Kind, limit int) ([]model.Document, error) {
	return c.view(ctx, "backup", "queue", string(kind), limit)
}

// view queries a design-document view with include_docs and returns the docs.
func (c *Client) view(ctx context.Context, design, name, key string, limit int) ([]model.Document, error) {
	keyJSON, _ := json.Marshal(key)
	u := fmt.Sprintf("%s/%s/_design/%s/_view/%s?key=%s&include_docs=true",
		c.baseURL, url.PathEscape(c.database), design, name, url.QueryEscape(string(keyJSON)))
	if limit > 0 {
		u += fmt.Sprintf("&limit=%d", limit)
	}
	resp, err := c.do(ctx, http.MethodGet, u, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, statusErr(resp, fmt.Sprintf("view %s/%s", design, name))
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	body, err := model.DecodeDocument(b)
	if err != nil {
		return nil, errors.Wrapf(err, "decode view %s/%s", design, name)
	}
	var out []model.Document
	for _, row := range body.List("rows") {
		doc := row.Sub("doc")
		if doc == nil {
			continue
		}
		delete(doc, "_id")
		delete(doc, "_rev")
		out = append(out, doc)
	}
	return out, nil
}

func (c *Client) SaveAttachment(ctx context.Context, key, rev, name, contentType string, data []byte) (string, error) {
	u := fmt.Sprintf("%s/%s?rev=%s", c.docURL(key), url.PathEscape(name), url.QueryEscape(rev))
	resp, err := c.do(ctx, http.MethodPut, u, bytes.NewReader(data), contentType)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", statusErr(resp, "attach "+key)
	}
	var out writeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Rev, nil
}
