// Package userstore is the persistent map of registered users, keyed on id
// with a secondary unique index on email.
package userstore

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/gatewayerr"
)

// User is a registered account. Agents is the set of agent ids owned by
// this user; it is never used to delete an agent from the core.
type User struct {
	ID        uuid.UUID   `json:"id"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	Agents    []uuid.UUID `json:"agents"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// New builds a User with a fresh id and timestamps.
func New(username, email string) User {
	now := time.Now().UTC()
	return User{
		ID:        uuid.New(),
		Username:  username,
		Email:     email,
		Agents:    []uuid.UUID{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddAgent appends agentID to Agents if not already present, bumping
// UpdatedAt.
func (u *User) AddAgent(agentID uuid.UUID) {
	for _, id := range u.Agents {
		if id == agentID {
			return
		}
	}
	u.Agents = append(u.Agents, agentID)
	u.UpdatedAt = time.Now().UTC()
}

// ReplaceAgent swaps oldID for newID in Agents, reporting whether oldID was
// present. Used after agent rotation, whose new id is otherwise invisible to
// listings that walk User.Agents rather than the agent store directly.
func (u *User) ReplaceAgent(oldID, newID uuid.UUID) bool {
	for i, id := range u.Agents {
		if id == oldID {
			u.Agents[i] = newID
			u.UpdatedAt = time.Now().UTC()
			return true
		}
	}
	return false
}

// usersFile is the on-disk document shape.
type usersFile struct {
	Users []User `json:"users"`
}

// Store is the persistent, in-memory user store.
type Store struct {
	mu      sync.RWMutex
	path    string
	byID    map[uuid.UUID]User
	byEmail map[string]uuid.UUID
}

// Load reads path. A missing file starts an empty store; a parse error
// fails the load.
func Load(path string) (*Store, error) {
	s := &Store{
		path:    path,
		byID:    make(map[uuid.UUID]User),
		byEmail: make(map[string]uuid.UUID),
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, gatewayerr.Internal("reading users file: " + err.Error())
	}

	var file usersFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, gatewayerr.Internal("parsing users file: " + err.Error())
	}

	for _, u := range file.Users {
		s.byID[u.ID] = u
		s.byEmail[u.Email] = u.ID
	}

	return s, nil
}

// Create inserts u into both the id and email indices and rewrites the
// file. Duplicate email fails with BadRequest.
func (s *Store) Create(u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[u.Email]; exists {
		return gatewayerr.BadRequest("a user with this email already exists")
	}

	s.byID[u.ID] = u
	s.byEmail[u.Email] = u.ID

	return s.rewriteLocked()
}

// Get returns the user with id.
func (s *Store) Get(id uuid.UUID) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	return u, ok
}

// List returns every registered user. Used by admin listing, which has no
// bulk-scan primitive of its own in the core store contract.
func (s *Store) List() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]User, 0, len(s.byID))
	for _, u := range s.byID {
		out = append(out, u)
	}
	return out
}

// GetByEmail returns the user with the given email.
func (s *Store) GetByEmail(email string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return User{}, false
	}
	u, ok := s.byID[id]
	return u, ok
}

// FindByAgent returns the user whose Agents contains agentID. Like List,
// this is a linear scan — the store has no secondary index for it, and
// admin operations on agent ownership are rare enough not to need one.
func (s *Store) FindByAgent(agentID uuid.UUID) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.byID {
		for _, id := range u.Agents {
			if id == agentID {
				return u, true
			}
		}
	}
	return User{}, false
}

// Update replaces u by id and rewrites the file.
func (s *Store) Update(u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[u.ID] = u
	s.byEmail[u.Email] = u.ID

	return s.rewriteLocked()
}

// rewriteLocked serializes every user and rewrites the file. Caller must
// hold s.mu for writing.
func (s *Store) rewriteLocked() error {
	file := usersFile{Users: make([]User, 0, len(s.byID))}
	for _, u := range s.byID {
		file.Users = append(file.Users, u)
	}

	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return gatewayerr.Internal("serializing users file: " + err.Error())
	}

	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return gatewayerr.Internal("writing users file: " + err.Error())
	}

	return nil
}
