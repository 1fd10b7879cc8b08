// Package vault is the encrypted-at-rest store of upstream service
// credentials. Every entry is keyed by service id; tokens are encrypted
// with pkg/cipher before being written to disk, decrypted on load, and held
// decrypted in memory, so Get returns plaintext tokens.
package vault

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/cipher"
	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/gatewayerr"
)

// StoredCredential is one upstream credential record, decrypted form.
type StoredCredential struct {
	ServiceID    string     `json:"service_id"`
	AccessToken  string     `json:"access_token"`
	RefreshToken *string    `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Scopes       []string   `json:"scopes"`
	Encrypted    bool       `json:"encrypted"`
}

// credentialsFile is the on-disk document shape.
type credentialsFile struct {
	Credentials []StoredCredential `json:"credentials"`
}

// Vault holds every credential in memory, decrypted, guarded by a
// readers-writer lock. The file on disk always stores entries encrypted.
type Vault struct {
	mu          sync.RWMutex
	path        string
	key         string
	logger      *slog.Logger
	byServiceID map[string]StoredCredential
}

// Load reads path, decrypting any entry marked encrypted and accepting any
// unmarked entry as plaintext. If at least one entry needed migration, every
// entry is re-encrypted and the file is rewritten; a rewrite failure is
// logged at error level and otherwise swallowed, leaving the in-memory state
// valid and the on-disk file as-is until the next successful Update.
//
// Load fails on I/O or JSON errors reading the source file, and also when an
// entry marked encrypted cannot be decrypted under key; such an entry is not
// skipped. logger may be nil, in which case slog.Default() is used.
func Load(path, key string, logger *slog.Logger) (*Vault, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v := &Vault{
		path:        path,
		key:         key,
		logger:      logger,
		byServiceID: make(map[string]StoredCredential),
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return v, nil
	}
	if err != nil {
		return nil, gatewayerr.Internal("reading credentials file: " + err.Error())
	}

	var file credentialsFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, gatewayerr.Internal("parsing credentials file: " + err.Error())
	}

	needsMigration := false
	for _, rec := range file.Credentials {
		decoded, err := decodeRecord(rec, key)
		if err != nil {
			return nil, err
		}
		if !rec.Encrypted {
			needsMigration = true
		}
		v.byServiceID[decoded.ServiceID] = decoded
	}

	if needsMigration {
		// Best-effort: a failure here must not fail Load, but it must not be
		// silent either — plaintext entries would otherwise stay on disk
		// indefinitely with no signal that migration never happened.
		if err := v.rewriteLocked(); err != nil {
			v.logger.Error("credential vault plaintext migration failed", "path", path, "error", err)
		}
	}

	return v, nil
}

// decodeRecord decrypts rec's tokens if rec.Encrypted is set, else accepts
// them as plaintext.
func decodeRecord(rec StoredCredential, key string) (StoredCredential, error) {
	if !rec.Encrypted {
		return rec, nil
	}

	access, err := cipher.Decrypt(rec.AccessToken, key)
	if err != nil {
		return StoredCredential{}, err
	}
	rec.AccessToken = access

	if rec.RefreshToken != nil {
		refresh, err := cipher.Decrypt(*rec.RefreshToken, key)
		if err != nil {
			return StoredCredential{}, err
		}
		rec.RefreshToken = &refresh
	}

	return rec, nil
}

// encodeRecord encrypts cred's tokens for on-disk storage.
func encodeRecord(cred StoredCredential, key string) (StoredCredential, error) {
	out := cred
	out.Encrypted = true

	access, err := cipher.Encrypt(cred.AccessToken, key)
	if err != nil {
		return StoredCredential{}, err
	}
	out.AccessToken = access

	if cred.RefreshToken != nil {
		refresh, err := cipher.Encrypt(*cred.RefreshToken, key)
		if err != nil {
			return StoredCredential{}, err
		}
		out.RefreshToken = &refresh
	}

	return out, nil
}

// Get returns a decrypted copy of the credential for serviceID.
func (v *Vault) Get(serviceID string) (StoredCredential, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	cred, ok := v.byServiceID[serviceID]
	return cred, ok
}

// Update replaces (or inserts) cred by ServiceID and durably rewrites the
// file, encrypting every entry. The lock is held across both the in-memory
// mutation and the file rewrite so the on-disk snapshot never lags a
// successful Update.
func (v *Vault) Update(cred StoredCredential) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.byServiceID[cred.ServiceID] = cred
	return v.rewriteLocked()
}

// NeedsRefresh reports whether the entry for serviceID has an ExpiresAt and
// now+buffer has passed it.
func (v *Vault) NeedsRefresh(serviceID string, buffer time.Duration) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()

	cred, ok := v.byServiceID[serviceID]
	if !ok || cred.ExpiresAt == nil {
		return false
	}
	return time.Now().Add(buffer).After(*cred.ExpiresAt)
}

// rewriteLocked serializes every entry, encrypted, and rewrites the file.
// Caller must hold v.mu for writing.
func (v *Vault) rewriteLocked() error {
	file := credentialsFile{Credentials: make([]StoredCredential, 0, len(v.byServiceID))}

	for _, cred := range v.byServiceID {
		encoded, err := encodeRecord(cred, v.key)
		if err != nil {
			return err
		}
		file.Credentials = append(file.Credentials, encoded)
	}

	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return gatewayerr.Internal("serializing credentials file: " + err.Error())
	}

	if err := os.WriteFile(v.path, raw, 0o600); err != nil {
		return gatewayerr.Internal("writing credentials file: " + err.Error())
	}

	return nil
}
