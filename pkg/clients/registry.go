// Package clients implements the durable registry of OAuth clients that have
// dynamically registered with this server.
package clients

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/veslink/calendar-mcp/pkg/random"
	"github.com/veslink/calendar-mcp/pkg/snapshot"
	"github.com/veslink/calendar-mcp/pkg/types"
)

const (
	clientIDBytes     = 16
	clientSecretBytes = 32
)

// Registry is the canonical client_id -> client lookup. The in-memory map is
// the source of truth; the snapshot store holds a crash-recovery copy that is
// rewritten wholesale on every registration.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*types.ClientInfo
	snap    snapshot.Store
	gen     random.Generator
}

// New loads the persisted registry. A load failure is not fatal: the registry
// starts empty and a warning is logged.
func New(snap snapshot.Store, gen random.Generator) *Registry {
	r := &Registry{
		clients: make(map[string]*types.ClientInfo),
		snap:    snap,
		gen:     gen,
	}

	data, err := snap.Load()
	if err != nil {
		log.Printf("Warning: failed to load client registry, starting empty: %v", err)
		return r
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &r.clients); err != nil {
			log.Printf("Warning: failed to parse client registry, starting empty: %v", err)
			r.clients = make(map[string]*types.ClientInfo)
		}
	}
	return r
}

// GetClient returns the registered client, if any. No side effects.
func (r *Registry) GetClient(clientID string) (*types.ClientInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	client, ok := r.clients[clientID]
	return client, ok
}

// RegisterClient assigns a server-generated client_id (and, for confidential
// clients, a prefixed client_secret that never expires), stores the client,
// and persists the full registry before returning. A storage failure rolls
// the registration back and propagates: the caller has no client_id to hand
// out otherwise.
func (r *Registry) RegisterClient(info *types.ClientInfo) (*types.ClientInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	client := *info
	client.ClientID = r.gen.String(clientIDBytes)
	client.IssuedAt = time.Now().Unix()
	if client.TokenEndpointAuthMethod != "none" {
		client.ClientSecret = r.gen.Token(random.PrefixClientSecret, clientSecretBytes)
		client.SecretExpiresAt = 0 // never expires
	}

	r.clients[client.ClientID] = &client
	if err := r.persistLocked(); err != nil {
		delete(r.clients, client.ClientID)
		return nil, fmt.Errorf("failed to persist client registry: %w", err)
	}
	return &client, nil
}

func (r *Registry) persistLocked() error {
	data, err := json.Marshal(r.clients)
	if err != nil {
		return err
	}
	return r.snap.Save(data)
}
