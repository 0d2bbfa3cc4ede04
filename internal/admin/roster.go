// Package admin implements the signed administrative control plane:
// roster management, nonce-based replay protection, role-based command
// authorization, and dispatch.
package admin

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tbcnet/gateway/pkg/utils"
)

// Role is an admin's authorization level. Roles nest: Monitor ⊆ Operator
// ⊆ SuperAdmin.
type Role string

const (
	RoleMonitor    Role = "monitor"
	RoleOperator   Role = "operator"
	RoleSuperAdmin Role = "super"
)

// rank orders roles so Satisfies can compare them numerically.
var rank = map[Role]int{RoleMonitor: 0, RoleOperator: 1, RoleSuperAdmin: 2}

// Satisfies reports whether role r meets or exceeds the required role.
func (r Role) Satisfies(required Role) bool {
	return rank[r] >= rank[required]
}

// ParseRole maps a config string to a Role, defaulting to Monitor for
// any unrecognized value, per the admin_keys configuration contract.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "super", "superadmin":
		return RoleSuperAdmin
	case "operator":
		return RoleOperator
	default:
		return RoleMonitor
	}
}

// Admin is one entry on the roster.
type Admin struct {
	Name      string
	PublicKey []byte // 32 bytes, Ed25519
	Role      Role
	CreatedAt time.Time
	LastSeen  *time.Time
}

// PublicKeyHex returns the admin's public key as lower-case hex.
func (a *Admin) PublicKeyHex() string {
	return hex.EncodeToString(a.PublicKey)
}

// Masked returns a copy of a suitable for GetConfig/ListAdmins responses:
// the public key is reduced to its first 6 and last 4 hex characters.
func (a *Admin) Masked() map[string]any {
	return map[string]any{
		"name":       a.Name,
		"public_key": utils.MaskHexKey(a.PublicKeyHex()),
		"role":       string(a.Role),
		"created_at": a.CreatedAt,
		"last_seen":  a.LastSeen,
	}
}

// Roster is the concurrency-safe, in-memory admin directory. It is
// read-heavy, so lookups take a read lock and mutations take a write
// lock, per the gateway's resource model.
type Roster struct {
	mu     sync.RWMutex
	byKey  map[string]*Admin // keyed by lower-case hex public key
}

// NewRoster constructs an empty roster.
func NewRoster() *Roster {
	return &Roster{byKey: make(map[string]*Admin)}
}

// Add installs or replaces an admin entry.
func (r *Roster) Add(a *Admin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[strings.ToLower(a.PublicKeyHex())] = a
}

// Remove deletes an admin by public key hex.
func (r *Roster) Remove(pubKeyHex string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byKey, strings.ToLower(pubKeyHex))
}

// Lookup resolves an admin by public key hex.
func (r *Roster) Lookup(pubKeyHex string) (*Admin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byKey[strings.ToLower(pubKeyHex)]
	return a, ok
}

// Touch updates LastSeen for the admin identified by pubKeyHex, if
// present. Called on every accepted admin request.
func (r *Roster) Touch(pubKeyHex string, when time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.byKey[strings.ToLower(pubKeyHex)]; ok {
		a.LastSeen = &when
	}
}

// List returns every admin, sorted by name, for ListAdmins.
func (r *Roster) List() []*Admin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Admin, 0, len(r.byKey))
	for _, a := range r.byKey {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ParseRosterEnv parses the admin_keys configuration value: a
// comma-separated list of "name:pubkey_hex:role" triples.
func ParseRosterEnv(raw string) (*Roster, error) {
	roster := NewRoster()
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return roster, nil
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("admin: malformed admin_keys entry %q, want name:pubkey_hex:role", entry)
		}
		name, pubHex, roleStr := parts[0], parts[1], parts[2]
		key, err := hex.DecodeString(pubHex)
		if err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("admin: invalid public key hex for %q", name))
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("admin: public key for %q must be 32 bytes, got %d", name, len(key))
		}
		roster.Add(&Admin{
			Name:      name,
			PublicKey: key,
			Role:      ParseRole(roleStr),
			CreatedAt: time.Now(),
		})
	}
	return roster, nil
}
