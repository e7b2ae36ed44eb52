// Package verify looks up a player's display name through the per-game
// verification endpoint. Every failure is reported as a miss.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"

	"github.com/ariefcatur/atee-topup/internal/model"
	"github.com/ariefcatur/atee-topup/internal/syncstore"
)

const maxBody = 1 << 20

var errServer = errors.New("verification endpoint returned a server error")

type BreakerSettings struct {
	MinRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
}

type Config struct {
	Timeout time.Duration
	Breaker BreakerSettings
}

func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Second,
		Breaker: BreakerSettings{MinRequests: 3, FailureRatio: 0.6, OpenTimeout: 30 * time.Second},
	}
}

type response struct {
	status int
	body   []byte
}

type Client struct {
	catalog syncstore.Reader
	http    *http.Client
	cfg     Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*response]
}

func NewClient(catalog syncstore.Reader, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		catalog:  catalog,
		http:     &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker[*response]),
	}
}

// VerifyPlayer resolves the game's endpoint configuration and verifies playerID.
func (c *Client) VerifyPlayer(ctx context.Context, gameID, playerID string) (string, bool) {
	game, ok := syncstore.Find[model.Game](ctx, c.catalog, model.CollectionGames, gameID)
	if !ok || !game.IsVerifyEnabled || game.APIConfigID == "" {
		return "", false
	}
	cfg, ok := syncstore.Find[model.APIConfig](ctx, c.catalog, model.CollectionAPIConfigs, game.APIConfigID)
	if !ok {
		log.Warn().Str("game_id", gameID).Str("api_config_id", game.APIConfigID).Msg("verification config missing")
		return "", false
	}
	return c.Verify(ctx, cfg, playerID)
}

// Verify calls the configured endpoint for subjectID and extracts the value
// at the configured response path.
func (c *Client) Verify(ctx context.Context, cfg model.APIConfig, subjectID string) (string, bool) {
	if cfg.Endpoint == "" || subjectID == "" {
		return "", false
	}
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet && method != http.MethodPost {
		return "", false
	}
	headers, err := parseHeaders(cfg.Headers)
	if err != nil {
		log.Warn().Err(err).Str("api_config_id", cfg.ID).Msg("verification headers invalid")
		return "", false
	}
	// only the first placeholder is filled
	target := strings.Replace(cfg.Endpoint, "{id}", escape(subjectID), 1)

	res, err := c.breaker(cfg).Execute(func() (*response, error) {
		return c.send(ctx, method, target, headers)
	})
	if err != nil {
		log.Debug().Err(err).Str("api_config_id", cfg.ID).Msg("verification request failed")
		return "", false
	}
	if res.status < 200 || res.status >= 300 {
		return "", false
	}
	return Extract(res.body, cfg.ResponsePath)
}

func (c *Client) send(ctx context.Context, method, target string, headers map[string]string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	res := &response{status: resp.StatusCode, body: body}
	if resp.StatusCode >= 500 {
		return res, errServer
	}
	return res, nil
}

// breaker returns the circuit breaker for one endpoint configuration.
func (c *Client) breaker(cfg model.APIConfig) *gobreaker.CircuitBreaker[*response] {
	key := cfg.ID
	if key == "" {
		key = cfg.Endpoint
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[key]; ok {
		return cb
	}

	bs := c.cfg.Breaker
	var st gobreaker.Settings
	st.Name = "verify:" + key
	st.Timeout = bs.OpenTimeout
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.Requests == 0 {
			return false
		}
		failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
		return counts.Requests >= bs.MinRequests && failureRatio >= bs.FailureRatio
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
	}
	cb := gobreaker.NewCircuitBreaker[*response](st)
	c.breakers[key] = cb
	return cb
}

// parseHeaders reads the JSON object stored on the configuration.
func parseHeaders(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out, nil
}

// escape encodes a path segment the way browsers encode URI components.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
