// Package registry loads the fixed, read-only catalog of upstream services
// the gateway is allowed to forward requests to.
package registry

import (
	"encoding/json"
	"os"

	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/gatewayerr"
)

// RateLimit is a requests-per-window policy, as configured for a service.
type RateLimit struct {
	Requests   int `json:"requests"`
	WindowSecs int `json:"window_secs"`
}

// Endpoint describes one path a service exposes and the scopes it requires.
type Endpoint struct {
	Path           string   `json:"path"`
	Methods        []string `json:"methods"`
	RequiredScopes []string `json:"required_scopes"`
}

// ServiceConfig is the immutable description of one upstream service.
type ServiceConfig struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	BaseURL     string     `json:"base_url"`
	AuthType    string     `json:"auth_type"`
	Endpoints   []Endpoint `json:"endpoints"`
	RateLimit   RateLimit  `json:"rate_limit"`
}

// servicesFile is the on-disk document shape.
type servicesFile struct {
	Services []ServiceConfig `json:"services"`
}

// Registry is the immutable, in-memory catalog of services keyed by id.
type Registry struct {
	services map[string]ServiceConfig
}

// Load reads and parses path into a Registry. A read or parse failure is
// fatal: the registry loads once at startup, before the server binds.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, gatewayerr.Internal("reading services config: " + err.Error())
	}

	var file servicesFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, gatewayerr.Internal("parsing services config: " + err.Error())
	}

	services := make(map[string]ServiceConfig, len(file.Services))
	for _, s := range file.Services {
		services[s.ID] = s
	}

	return &Registry{services: services}, nil
}

// Get returns the service config for id, if registered.
func (r *Registry) Get(id string) (ServiceConfig, bool) {
	s, ok := r.services[id]
	return s, ok
}

// List returns every registered service config.
func (r *Registry) List() []ServiceConfig {
	out := make([]ServiceConfig, 0, len(r.services))
	for _, s := range r.services {
		out = append(out, s)
	}
	return out
}

// Exists reports whether id is a registered service.
func (r *Registry) Exists(id string) bool {
	_, ok := r.services[id]
	return ok
}
