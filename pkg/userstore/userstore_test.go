package userstore

import (
	"path/filepath"
	"testing"

	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/gatewayerr"
)

func storePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "users.json")
}

func TestCreateGetRoundTrip(t *testing.T) {
	s, err := Load(storePath(t))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	u := New("alice", "alice@example.test")
	if err := s.Create(u); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	byID, ok := s.Get(u.ID)
	if !ok {
		t.Fatal("Get() did not find created user")
	}
	if byID.Email != u.Email {
		t.Errorf("Email = %q, want %q", byID.Email, u.Email)
	}

	byEmail, ok := s.GetByEmail("alice@example.test")
	if !ok {
		t.Fatal("GetByEmail() did not find created user")
	}
	if byEmail.ID != u.ID {
		t.Errorf("GetByEmail id = %v, want %v", byEmail.ID, u.ID)
	}
}

func TestCreateDuplicateEmailFails(t *testing.T) {
	s, err := Load(storePath(t))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	u1 := New("alice", "dup@example.test")
	if err := s.Create(u1); err != nil {
		t.Fatalf("first Create() error: %v", err)
	}

	u2 := New("alice-again", "dup@example.test")
	err = s.Create(u2)
	if err == nil {
		t.Fatal("second Create() with duplicate email succeeded, want error")
	}

	ge, ok := gatewayerr.As(err)
	if !ok || ge.Kind != gatewayerr.KindBadRequest {
		t.Errorf("error = %v, want gatewayerr.BadRequest", err)
	}
}

func TestLoadPersistsAcrossReload(t *testing.T) {
	path := storePath(t)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	u := New("bob", "bob@example.test")
	if err := s.Create(u); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	reopened, err := Load(path)
	if err != nil {
		t.Fatalf("reload Load() error: %v", err)
	}
	if _, ok := reopened.GetByEmail("bob@example.test"); !ok {
		t.Error("reloaded store missing previously created user")
	}
}

func TestAddAgentIsIdempotent(t *testing.T) {
	u := New("carol", "carol@example.test")
	agentID := New("placeholder", "placeholder@example.test").ID

	u.AddAgent(agentID)
	u.AddAgent(agentID)

	if len(u.Agents) != 1 {
		t.Errorf("Agents = %v, want exactly one entry", u.Agents)
	}
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load() of missing file errored: %v", err)
	}
	if _, ok := s.GetByEmail("nobody@example.test"); ok {
		t.Error("fresh store unexpectedly contains a user")
	}
}
