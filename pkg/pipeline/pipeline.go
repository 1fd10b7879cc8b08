// Package pipeline implements the request-admission and credential-
// injection pipeline: the ordered sequence of checks and transformations
// applied to every proxied request before it reaches an upstream service.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Cleroy288/secure-ai-agent-gateway/internal/audit"
	"github.com/Cleroy288/secure-ai-agent-gateway/internal/httpserver"
	"github.com/Cleroy288/secure-ai-agent-gateway/internal/telemetry"
	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/agentstore"
	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/gatewayerr"
	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/ratelimit"
	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/refresher"
	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/registry"
	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/vault"
)

// hopByHop is the set of header names a proxy must never forward.
var hopByHop = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailers":            true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

// allowedMethods is the method whitelist the dispatch step enforces.
var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodPatch:  true,
}

// Pipeline wires every store and helper the admission pipeline needs.
type Pipeline struct {
	Agents     *agentstore.Store
	Services   *registry.Registry
	Vault      *vault.Vault
	RateLimit  *ratelimit.Limiter
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// New constructs a Pipeline. httpClient may be nil, in which case
// http.DefaultClient is used.
func New(agents *agentstore.Store, services *registry.Registry, v *vault.Vault, limiter *ratelimit.Limiter, httpClient *http.Client, logger *slog.Logger) *Pipeline {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Pipeline{
		Agents:     agents,
		Services:   services,
		Vault:      v,
		RateLimit:  limiter,
		HTTPClient: httpClient,
		Logger:     logger,
	}
}

// Request is the normalized inbound proxy request the pipeline admits.
type Request struct {
	SessionID string
	Service   string
	Path      string
	Method    string
	Header    http.Header
	Body      []byte
}

// Response is the pipeline's result, ready to be written to the caller.
type Response struct {
	Status int
	Body   any
}

// Handle runs the full 10-step admission pipeline. A failure at any step
// short-circuits the remainder and is returned as a *gatewayerr.Error.
func (p *Pipeline) Handle(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	// Step 1: session extraction happens before Handle is called (the HTTP
	// layer reads X-Session-ID); an empty SessionID here still must fail.
	if req.SessionID == "" {
		telemetry.AdmissionRejectionsTotal.WithLabelValues(string(gatewayerr.KindUnauthorized)).Inc()
		return nil, gatewayerr.Unauthorized("Missing X-Session-ID header")
	}

	// Step 2: session validation.
	_, agent, err := p.Agents.ValidateSession(req.SessionID)
	if err != nil {
		ge, _ := gatewayerr.As(err)
		telemetry.AdmissionRejectionsTotal.WithLabelValues(string(ge.Kind)).Inc()
		return nil, err
	}

	// Step 3: agent expiry.
	if agent.IsExpired() {
		telemetry.AdmissionRejectionsTotal.WithLabelValues(string(gatewayerr.KindUnauthorized)).Inc()
		return nil, gatewayerr.Unauthorized("Access key has expired. Please rotate your key.")
	}

	// Step 4: entitlement.
	if !agent.CanAccessService(req.Service) {
		telemetry.AdmissionRejectionsTotal.WithLabelValues(string(gatewayerr.KindServiceNotAllowed)).Inc()
		return nil, gatewayerr.ServiceNotAllowed(req.Service)
	}

	// Step 5: rate limiting — agent first, then service.
	if err := p.RateLimit.CheckAgent(agent.ID.String()); err != nil {
		telemetry.RateLimitRejectionsTotal.WithLabelValues("agent").Inc()
		return nil, err
	}
	if err := p.RateLimit.CheckService(req.Service); err != nil {
		telemetry.RateLimitRejectionsTotal.WithLabelValues("service").Inc()
		return nil, err
	}

	// Step 6: service lookup.
	service, ok := p.Services.Get(req.Service)
	if !ok {
		return nil, gatewayerr.NotFound(fmt.Sprintf("unknown service %q", req.Service))
	}

	// Step 7: credential fetch.
	credential, ok := p.Vault.Get(req.Service)
	if !ok {
		return nil, gatewayerr.CredentialNotFound(req.Service)
	}

	// Step 8: refresh if needed. Best-effort: failure is not fatal.
	if refresher.NeedsRefresh(credential) {
		if refreshed, ok := refresher.Refresh(ctx, credential); ok {
			if err := p.Vault.Update(*refreshed); err != nil {
				p.logWarn("credential refresh persist failed, using stale credential",
					"service", req.Service, "error", err)
				telemetry.CredentialRefreshTotal.WithLabelValues("persist_failed").Inc()
			} else {
				credential = *refreshed
				telemetry.CredentialRefreshTotal.WithLabelValues("refreshed").Inc()
			}
		} else {
			telemetry.CredentialRefreshTotal.WithLabelValues("no_refresh_token").Inc()
		}
	}

	// Step 9: dispatch.
	resp, err := p.dispatch(ctx, service, req, credential)
	if err != nil {
		telemetry.UpstreamDispatchTotal.WithLabelValues(req.Service, "error").Inc()
		return nil, err
	}
	telemetry.UpstreamDispatchTotal.WithLabelValues(req.Service, "ok").Inc()

	// Step 10: response handling.
	result, err := p.buildResponse(resp)
	if err == nil && p.Logger != nil {
		audit.Log(p.Logger, audit.Entry{
			AgentID:      agent.ID,
			SessionID:    req.SessionID,
			ServiceID:    req.Service,
			Endpoint:     req.Path,
			Method:       req.Method,
			StatusCode:   result.Status,
			RequestID:    httpserver.RequestIDFromContext(ctx),
			Timestamp:    start,
			ResponseTime: time.Since(start),
		})
	}
	return result, err
}

// dispatch builds and sends the upstream request.
func (p *Pipeline) dispatch(ctx context.Context, service registry.ServiceConfig, req Request, credential vault.StoredCredential) (*http.Response, error) {
	if !allowedMethods[strings.ToUpper(req.Method)] {
		return nil, gatewayerr.BadRequest("Unsupported method")
	}

	url := strings.TrimRight(service.BaseURL, "/") + "/" + strings.TrimLeft(req.Path, "/")

	upstreamReq, err := http.NewRequestWithContext(ctx, req.Method, url, bytes.NewReader(req.Body))
	if err != nil {
		return nil, gatewayerr.Internal("building upstream request: " + err.Error())
	}

	for name, values := range req.Header {
		lower := strings.ToLower(name)
		if hopByHop[lower] || lower == "host" || lower == "authorization" {
			continue
		}
		for _, v := range values {
			if !validUTF8(v) {
				continue
			}
			upstreamReq.Header.Add(name, v)
		}
	}
	upstreamReq.Header.Set("Authorization", "Bearer "+credential.AccessToken)

	resp, err := p.HTTPClient.Do(upstreamReq)
	if err != nil {
		return nil, gatewayerr.UpstreamError("upstream dispatch failed: " + err.Error())
	}
	return resp, nil
}

// buildResponse reads the upstream response and parses its body as JSON,
// falling back to a placeholder on parse failure.
func (p *Pipeline) buildResponse(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gatewayerr.UpstreamError("reading upstream response: " + err.Error())
	}

	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		body = map[string]string{"raw": "non-json response"}
	}

	return &Response{Status: resp.StatusCode, Body: body}, nil
}

func validUTF8(s string) bool {
	return utf8.ValidString(s)
}

func (p *Pipeline) logWarn(msg string, args ...any) {
	if p.Logger == nil {
		return
	}
	p.Logger.Warn(msg, args...)
}

