// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/erpquery/query"
)

// =============================================================================
// Odoo JSON-RPC client
// =============================================================================

const jsonrpcPath = "/jsonrpc"

// OdooOptions configures an OdooClient.
type OdooOptions struct {
	// URL is the server base URL, e.g. "http://odoo.internal:8069".
	URL string

	// Database is the Odoo database name.
	Database string

	// Username and Password authenticate against the "common" service.
	Username string
	Password string

	// HTTPClient overrides the default client (30s timeout) when set.
	HTTPClient *http.Client

	// Limiter, when set, caps the outbound request rate. Wait is called
	// before every RPC, including authenticate.
	Limiter *rate.Limiter

	// Logger defaults to slog.Default when nil.
	Logger *slog.Logger
}

// OdooClient speaks Odoo's external JSON-RPC 2.0 API.
//
// # Description
//
// Calls go through the single /jsonrpc endpoint. Authentication uses the
// "common" service and yields a numeric uid; record access uses the "object"
// service's execute_kw with that uid. The client re-authenticates lazily on
// first use and never stores a session cookie.
//
// # Thread Safety
//
// Safe for concurrent use. Authentication is guarded so concurrent first
// calls produce a single login round trip.
type OdooClient struct {
	opts   OdooOptions
	http   *http.Client
	logger *slog.Logger

	mu  sync.Mutex
	uid int
}

// NewOdooClient builds a client. No network traffic happens until the first
// call.
func NewOdooClient(opts OdooOptions) *OdooClient {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OdooClient{opts: opts, http: hc, logger: logger}
}

type rpcRequest struct {
	Jsonrpc string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int64     `json:"id"`
}

type rpcParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

type rpcResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"data"`
}

func (e *rpcError) Error() string {
	if e.Data.Message != "" {
		return fmt.Sprintf("rpc error %d: %s", e.Code, e.Data.Message)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// -----------------------------------------------------------------------------
// Transport
// -----------------------------------------------------------------------------

func (c *OdooClient) call(ctx context.Context, service, method string, args []any, out any) error {
	if c.opts.Limiter != nil {
		if err := c.opts.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	body, err := json.Marshal(rpcRequest{
		Jsonrpc: "2.0",
		Method:  "call",
		Params:  rpcParams{Service: service, Method: method, Args: args},
		ID:      time.Now().UnixNano(),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL+jsonrpcPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// authenticate logs in via the common service and caches the uid.
func (c *OdooClient) authenticate(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uid != 0 {
		return c.uid, nil
	}
	if c.opts.URL == "" || c.opts.Database == "" || c.opts.Username == "" {
		return 0, &Error{Op: "authenticate", Err: ErrNotConnected}
	}

	var uid int
	args := []any{c.opts.Database, c.opts.Username, c.opts.Password, map[string]any{}}
	if err := c.call(ctx, "common", "authenticate", args, &uid); err != nil {
		return 0, &Error{Op: "authenticate", Err: err}
	}
	if uid == 0 {
		return 0, &Error{Op: "authenticate", Err: fmt.Errorf("invalid credentials for %q", c.opts.Username)}
	}

	c.uid = uid
	c.logger.Info("odoo authenticated",
		slog.String("url", c.opts.URL),
		slog.String("database", c.opts.Database),
		slog.Int("uid", uid),
	)
	return uid, nil
}

func (c *OdooClient) executeKw(ctx context.Context, model, method string, args []any, kwargs map[string]any, out any) error {
	uid, err := c.authenticate(ctx)
	if err != nil {
		return err
	}
	callArgs := []any{c.opts.Database, uid, c.opts.Password, model, method, args, kwargs}
	if err := c.call(ctx, "object", "execute_kw", callArgs, out); err != nil {
		return &Error{Op: method, Model: model, Err: err}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Record access
// -----------------------------------------------------------------------------

// domain converts predicates into Odoo's triplet domain form.
func domain(predicates []query.Predicate) [][]any {
	d := make([][]any, 0, len(predicates))
	for _, p := range predicates {
		d = append(d, []any{p.Field, string(p.Op), p.Value})
	}
	return d
}

// SearchRead implements Backend.
func (c *OdooClient) SearchRead(ctx context.Context, model string, predicates []query.Predicate, fields []string, limit int, order string) ([]map[string]any, error) {
	kwargs := map[string]any{"fields": fields}
	if limit > 0 {
		kwargs["limit"] = limit
	}
	if order != "" {
		kwargs["order"] = order
	}

	start := time.Now()
	var records []map[string]any
	if err := c.executeKw(ctx, model, "search_read", []any{domain(predicates)}, kwargs, &records); err != nil {
		return nil, err
	}
	c.logger.Debug("search_read",
		slog.String("model", model),
		slog.Int("records", len(records)),
		slog.Duration("took", time.Since(start)),
	)
	return records, nil
}

// SearchCount implements Backend.
func (c *OdooClient) SearchCount(ctx context.Context, model string, predicates []query.Predicate) (int, error) {
	var count int
	if err := c.executeKw(ctx, model, "search_count", []any{domain(predicates)}, nil, &count); err != nil {
		return 0, err
	}
	return count, nil
}
