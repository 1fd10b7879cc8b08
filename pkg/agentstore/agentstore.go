// Package agentstore is the persistent store of agent identities and their
// sessions: creation, lifecycle mutation, rotation, and session validation.
package agentstore

import (
	"encoding/json"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/gatewayerr"
	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/registry"
)

// RateLimit mirrors registry.RateLimit. It is stored with each agent, but the
// rate limiter always applies its default agent policy and does not read it.
type RateLimit = registry.RateLimit

// Agent is a long-lived AI-agent identity. Its id doubles as a rotatable
// access-key identifier.
type Agent struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	AllowedServices []string  `json:"allowed_services"`
	Scopes          []string  `json:"scopes"`
	RateLimit       RateLimit `json:"rate_limit"`
	IPAllowlist     []net.IP  `json:"ip_allowlist,omitempty"`
	ExpiresAt       time.Time `json:"expires_at"`
	LifespanDays    int       `json:"lifespan_days"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewAgent builds an Agent with a fresh id and an expiry lifespanDays from now.
func NewAgent(name, description string, lifespanDays int) Agent {
	now := time.Now().UTC()
	return Agent{
		ID:              uuid.New(),
		Name:            name,
		Description:     description,
		AllowedServices: []string{},
		Scopes:          []string{},
		RateLimit:       RateLimit{Requests: 100, WindowSecs: 60},
		ExpiresAt:       now.AddDate(0, 0, lifespanDays),
		LifespanDays:    lifespanDays,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// CanAccessService reports whether serviceID is in AllowedServices.
func (a *Agent) CanAccessService(serviceID string) bool {
	for _, s := range a.AllowedServices {
		if s == serviceID {
			return true
		}
	}
	return false
}

// IsExpired reports whether the access key has passed ExpiresAt.
func (a *Agent) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

// AddService grants serviceID if not already present. Idempotent. Builds a
// fresh backing array rather than appending in place: Agent values returned
// by Store.GetAgent are shallow copies that still alias the stored slice's
// backing array, so an in-place append or element shift here would mutate
// store state outside of any lock.
func (a *Agent) AddService(serviceID string) {
	if a.CanAccessService(serviceID) {
		return
	}
	next := make([]string, len(a.AllowedServices), len(a.AllowedServices)+1)
	copy(next, a.AllowedServices)
	a.AllowedServices = append(next, serviceID)
	a.UpdatedAt = time.Now().UTC()
}

// RemoveService revokes serviceID, reporting whether it was present. See
// AddService for why this builds a fresh slice instead of shifting in place.
func (a *Agent) RemoveService(serviceID string) bool {
	for i, s := range a.AllowedServices {
		if s == serviceID {
			next := make([]string, 0, len(a.AllowedServices)-1)
			next = append(next, a.AllowedServices[:i]...)
			next = append(next, a.AllowedServices[i+1:]...)
			a.AllowedServices = next
			a.UpdatedAt = time.Now().UTC()
			return true
		}
	}
	return false
}

// Rotate atomically replaces the agent's id with a fresh UUID and
// recomputes ExpiresAt from the rotation time. The caller is responsible
// for issuing a new session bound to the new id; sessions bound to the
// pre-rotation id become orphaned and are rejected by ValidateSession.
func (a *Agent) Rotate() uuid.UUID {
	now := time.Now().UTC()
	a.ID = uuid.New()
	a.ExpiresAt = now.AddDate(0, 0, a.LifespanDays)
	a.UpdatedAt = now
	return a.ID
}

// Session is a short-lived bearer id bound to one agent at creation.
type Session struct {
	SessionID  string    `json:"session_id"`
	AgentID    uuid.UUID `json:"agent_id"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// IsExpired reports whether the session has passed ExpiresAt.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// storeFile is the combined on-disk document: agents and sessions are
// always serialized together.
type storeFile struct {
	Agents   []Agent   `json:"agents"`
	Sessions []Session `json:"sessions"`
}

// Store is the persistent, in-memory agent and session store.
type Store struct {
	mu       sync.RWMutex
	path     string
	agents   map[uuid.UUID]Agent
	sessions map[string]Session
}

// Load reads path. A missing file starts an empty store; a parse error
// fails the load.
func Load(path string) (*Store, error) {
	s := &Store{
		path:     path,
		agents:   make(map[uuid.UUID]Agent),
		sessions: make(map[string]Session),
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, gatewayerr.Internal("reading agents file: " + err.Error())
	}

	var file storeFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, gatewayerr.Internal("parsing agents file: " + err.Error())
	}

	for _, a := range file.Agents {
		s.agents[a.ID] = a
	}
	for _, sess := range file.Sessions {
		s.sessions[sess.SessionID] = sess
	}

	return s, nil
}

// CreateAgent inserts agent and rewrites the file. Returns the stored copy.
func (s *Store) CreateAgent(agent Agent) (Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.agents[agent.ID] = agent
	if err := s.rewriteLocked(); err != nil {
		return Agent{}, err
	}
	return agent, nil
}

// GetAgent returns the agent with id.
func (s *Store) GetAgent(id uuid.UUID) (Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[id]
	return a, ok
}

// UpdateAgent replaces agent by id and rewrites the file.
func (s *Store) UpdateAgent(agent Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.agents[agent.ID] = agent
	return s.rewriteLocked()
}

// RotateAgent replaces the agent at oldID with a fresh id and recomputed
// expiry, atomically removing the old map entry so that sessions bound to
// oldID can no longer resolve to any agent. Returns the rotated agent.
func (s *Store) RotateAgent(oldID uuid.UUID) (Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[oldID]
	if !ok {
		return Agent{}, gatewayerr.NotFound("unknown agent")
	}

	delete(s.agents, oldID)
	agent.Rotate()
	s.agents[agent.ID] = agent

	if err := s.rewriteLocked(); err != nil {
		return Agent{}, err
	}
	return agent, nil
}

// MutateAgent looks up id, applies fn to its own copy, and persists the
// result — all under one lock acquisition. Use this instead of a bare
// GetAgent+UpdateAgent pair whenever the mutation depends on the agent's
// current state (entitlement grants/revokes, scope changes), since that
// pair is two independent critical sections and a lost update between them
// is possible under concurrent callers.
func (s *Store) MutateAgent(id uuid.UUID, fn func(*Agent)) (Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[id]
	if !ok {
		return Agent{}, gatewayerr.NotFound("unknown agent")
	}

	fn(&agent)
	s.agents[agent.ID] = agent
	if err := s.rewriteLocked(); err != nil {
		return Agent{}, err
	}
	return agent, nil
}

// DeleteAgent removes id, rewrites the file, and reports whether it was
// present.
func (s *Store) DeleteAgent(id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[id]; !ok {
		return false, nil
	}
	delete(s.agents, id)
	if err := s.rewriteLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// CreateSession generates a session bound to agentID with the given ttl,
// inserts it, and rewrites the file.
func (s *Store) CreateSession(agentID uuid.UUID, ttl time.Duration) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	session := Session{
		SessionID:  uuid.New().String(),
		AgentID:    agentID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		LastUsedAt: now,
	}

	s.sessions[session.SessionID] = session
	if err := s.rewriteLocked(); err != nil {
		return Session{}, err
	}
	return session, nil
}

// GetSession returns the session with sessionID.
func (s *Store) GetSession(sessionID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	return sess, ok
}

// ValidateSession resolves sessionID to its session and agent, or fails:
// Unauthorized if the session is absent or its agent no longer resolves
// (including an agent orphaned by rotation — there is no way to tell that
// case apart from "never existed", so both share this outcome);
// SessionExpired if the session's ExpiresAt has passed.
func (s *Store) ValidateSession(sessionID string) (Session, Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, Agent{}, gatewayerr.Unauthorized("unknown session")
	}

	if session.IsExpired() {
		return Session{}, Agent{}, gatewayerr.SessionExpired()
	}

	agent, ok := s.agents[session.AgentID]
	if !ok {
		return Session{}, Agent{}, gatewayerr.Unauthorized("session refers to an agent that no longer exists")
	}

	return session, agent, nil
}

// rewriteLocked serializes agents and sessions together and rewrites the
// file. Caller must hold s.mu for writing.
func (s *Store) rewriteLocked() error {
	file := storeFile{
		Agents:   make([]Agent, 0, len(s.agents)),
		Sessions: make([]Session, 0, len(s.sessions)),
	}
	for _, a := range s.agents {
		file.Agents = append(file.Agents, a)
	}
	for _, sess := range s.sessions {
		file.Sessions = append(file.Sessions, sess)
	}

	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return gatewayerr.Internal("serializing agents file: " + err.Error())
	}

	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return gatewayerr.Internal("writing agents file: " + err.Error())
	}

	return nil
}
