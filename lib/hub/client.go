// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/majordomo-home/majordomo/lib/clock"
	"github.com/majordomo-home/majordomo/lib/netutil"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the hub's base URL (e.g. "http://homeassistant.local:8123").
	BaseURL string

	// Token is the long-lived access token for the hub API.
	Token string

	// Expose selects which entities snapshots include.
	Expose ExposeFilter

	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used.
	HTTPClient *http.Client

	// Logger is used for structured logging. If nil, logging is
	// discarded.
	Logger *slog.Logger

	// Clock supplies snapshot timestamps. If nil, the real clock is
	// used.
	Clock clock.Clock
}

// Client is an authenticated hub API client.
type Client struct {
	baseURL    string
	token      string
	expose     ExposeFilter
	httpClient *http.Client
	logger     *slog.Logger
	clock      clock.Clock
}

// NewClient creates a hub client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("hub: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("hub: invalid BaseURL %q: %w", config.BaseURL, err)
	}
	if config.Token == "" {
		return nil, fmt.Errorf("hub: Token is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	hubClock := config.Clock
	if hubClock == nil {
		hubClock = clock.Real()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		token:      config.Token,
		expose:     config.Expose,
		httpClient: httpClient,
		logger:     logger,
		clock:      hubClock,
	}, nil
}

// Ping verifies that the hub API is reachable and the token is
// accepted.
func (client *Client) Ping(ctx context.Context) error {
	if _, err := client.doRequest(ctx, http.MethodGet, "/api/", nil); err != nil {
		return fmt.Errorf("hub: ping failed: %w", err)
	}
	return nil
}

// States returns the hub's full entity-state dump, unfiltered.
func (client *Client) States(ctx context.Context) ([]EntityState, error) {
	body, err := client.doRequest(ctx, http.MethodGet, "/api/states", nil)
	if err != nil {
		return nil, fmt.Errorf("hub: fetching states: %w", err)
	}

	var states []EntityState
	if err := json.Unmarshal(body, &states); err != nil {
		return nil, fmt.Errorf("hub: parsing states response: %w", err)
	}
	return states, nil
}

// CallService invokes a hub service against the call's target entity
// and returns the states the hub reports as changed.
func (client *Client) CallService(ctx context.Context, call ServiceCall) ([]EntityState, error) {
	if call.Domain == "" || call.Service == "" {
		return nil, fmt.Errorf("hub: service call requires domain and service")
	}

	requestBody := make(map[string]any, len(call.Data)+1)
	for key, value := range call.Data {
		requestBody[key] = value
	}
	if call.EntityID != "" {
		requestBody["entity_id"] = call.EntityID
	}

	path := fmt.Sprintf("/api/services/%s/%s", url.PathEscape(call.Domain), url.PathEscape(call.Service))
	body, err := client.doRequest(ctx, http.MethodPost, path, requestBody)
	if err != nil {
		return nil, fmt.Errorf("hub: calling %s.%s: %w", call.Domain, call.Service, err)
	}

	var changed []EntityState
	if err := json.Unmarshal(body, &changed); err != nil {
		return nil, fmt.Errorf("hub: parsing service call response: %w", err)
	}

	client.logger.Debug("hub service call",
		"domain", call.Domain,
		"service", call.Service,
		"entity_id", call.EntityID,
		"changed", len(changed),
	)
	return changed, nil
}

// RenderTemplate evaluates a template on the hub and returns the
// rendered text.
func (client *Client) RenderTemplate(ctx context.Context, template string) (string, error) {
	body, err := client.doRequest(ctx, http.MethodPost, "/api/template", map[string]string{
		"template": template,
	})
	if err != nil {
		return "", fmt.Errorf("hub: rendering template: %w", err)
	}
	return string(body), nil
}

// Snapshot assembles the exposed-entity view: the state dump filtered
// through the expose rules, annotated with area assignments, grouped
// and sorted.
func (client *Client) Snapshot(ctx context.Context) (*Snapshot, error) {
	states, err := client.States(ctx)
	if err != nil {
		return nil, err
	}

	var exposed []EntityState
	for _, state := range states {
		if client.expose.Exposed(state.EntityID) {
			exposed = append(exposed, state)
		}
	}

	areas := client.resolveAreas(ctx, exposed)

	entities := make([]Entity, 0, len(exposed))
	for _, state := range exposed {
		entities = append(entities, Entity{
			ID:         state.EntityID,
			Domain:     EntityDomain(state.EntityID),
			Name:       state.FriendlyName(),
			Area:       areas[state.EntityID],
			State:      state.State,
			Attributes: state.Attributes,
		})
	}

	client.logger.Debug("hub snapshot",
		"total", len(states),
		"exposed", len(entities),
	)
	return &Snapshot{
		Areas: groupByArea(entities),
		Taken: client.clock.Now(),
	}, nil
}

// resolveAreas maps entity ids to area names via the hub's template
// engine. Area information is decorative in the prompt, so a failed
// resolution degrades to unassigned entities instead of failing the
// snapshot.
func (client *Client) resolveAreas(ctx context.Context, states []EntityState) map[string]string {
	if len(states) == 0 {
		return nil
	}

	entityIDs := make([]string, 0, len(states))
	for _, state := range states {
		entityIDs = append(entityIDs, state.EntityID)
	}

	rendered, err := client.RenderTemplate(ctx, areaTemplate(entityIDs))
	if err != nil {
		client.logger.Warn("area resolution failed, entities will be unassigned", "error", err)
		return nil
	}

	areas := make(map[string]string, len(entityIDs))
	if err := json.Unmarshal([]byte(rendered), &areas); err != nil {
		client.logger.Warn("area template produced unparseable output", "error", err)
		return nil
	}
	return areas
}

// areaTemplate builds a hub template that renders a JSON object
// mapping each entity id to its area name (empty string when
// unassigned).
func areaTemplate(entityIDs []string) string {
	var builder strings.Builder
	builder.WriteString("{")
	for index, entityID := range entityIDs {
		if index > 0 {
			builder.WriteString(", ")
		}
		fmt.Fprintf(&builder, "%q: {{ (area_name(%q) or '') | tojson }}", entityID, entityID)
	}
	builder.WriteString("}")
	return builder.String()
}

// doRequest performs an HTTP request against the hub and returns the
// response body. On 2xx, returns the body. On 4xx/5xx, returns a
// typed *Error.
func (client *Client) doRequest(ctx context.Context, method, path string, requestBody any) ([]byte, error) {
	var bodyReader *bytes.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	requestURL := client.baseURL + path
	var request *http.Request
	var err error
	if bodyReader != nil {
		request, err = http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	} else {
		request, err = http.NewRequestWithContext(ctx, method, requestURL, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("Authorization", "Bearer "+client.token)

	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	hubError := &Error{StatusCode: response.StatusCode}
	var wireError struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(responseBody, &wireError) == nil && wireError.Message != "" {
		hubError.Message = wireError.Message
	} else {
		hubError.Message = strings.TrimSpace(string(responseBody))
	}
	return nil, hubError
}
