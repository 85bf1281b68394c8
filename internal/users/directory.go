// Package users holds the static user directory loaded from configuration. Users are
// identified by opaque ids; the directory only adds display details and the admin flag.
package users

import (
	"sync"

	"github.com/bi-platform/apikeys/internal/apikeys"
	"github.com/bi-platform/apikeys/internal/config"
)

// User is one directory entry.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Admin bool   `json:"admin"`
}

// Directory is safe for concurrent use; Replace swaps the whole set atomically.
type Directory struct {
	mu   sync.RWMutex
	byID map[string]User
}

// NewDirectory builds a directory from configuration entries.
func NewDirectory(entries []config.UserConfig) *Directory {
	d := &Directory{}
	d.Replace(entries)
	return d
}

// Replace installs a new set of users, e.g. after a config reload.
func (d *Directory) Replace(entries []config.UserConfig) {
	byID := make(map[string]User, len(entries))
	for _, e := range entries {
		byID[e.ID] = User{ID: e.ID, Name: e.Name, Email: e.Email, Admin: e.Admin}
	}
	d.mu.Lock()
	d.byID = byID
	d.mu.Unlock()
}

// Lookup returns the user with id, if present.
func (d *Directory) Lookup(id string) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[id]
	return u, ok
}

// Principal resolves id to an acting principal. Ids missing from the directory still act,
// without admin rights, so keys outlive the directory entry of their owner.
func (d *Directory) Principal(id string) apikeys.Principal {
	u, _ := d.Lookup(id)
	return apikeys.Principal{ID: id, IsAdmin: u.Admin}
}
