package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"candleview/internal/model"
)

const overlayConfigKey = "chart:overlay_config"

// KV is the persistence the config store needs. The Redis store satisfies it.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, val string) error
}

// OverlaySettings is the last overlay config a user applied and whether the
// overlay was left on.
type OverlaySettings struct {
	Active bool                  `json:"active"`
	Config model.IndicatorConfig `json:"config"`
}

// ConfigStore keeps the current overlay settings, persists them and tells
// every client when they change.
type ConfigStore struct {
	hub *Hub

	mu       sync.RWMutex
	kv       KV
	settings OverlaySettings
}

// NewConfigStore starts from the default config with the overlay off.
// kv may be nil, in which case settings live in memory only.
func NewConfigStore(hub *Hub, kv KV) *ConfigStore {
	return &ConfigStore{
		hub:      hub,
		kv:       kv,
		settings: OverlaySettings{Config: model.DefaultIndicatorConfig()},
	}
}

// SetBackend attaches persistence after construction.
func (cs *ConfigStore) SetBackend(kv KV) {
	cs.mu.Lock()
	cs.kv = kv
	cs.mu.Unlock()
}

// SetDefault replaces the config used until something is persisted.
func (cs *ConfigStore) SetDefault(cfg model.IndicatorConfig) {
	cs.mu.Lock()
	cs.settings.Config = cfg
	cs.mu.Unlock()
}

// Load restores settings from the backend. A missing or invalid record
// leaves the current settings in place and returns false.
func (cs *ConfigStore) Load(ctx context.Context) bool {
	cs.mu.RLock()
	kv := cs.kv
	cs.mu.RUnlock()
	if kv == nil {
		return false
	}

	data, err := kv.Get(ctx, overlayConfigKey)
	if err != nil {
		return false
	}
	var s OverlaySettings
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		log.Printf("[config_store] WARNING: discarding unreadable overlay config: %v", err)
		return false
	}
	if err := s.Config.Validate(); err != nil {
		log.Printf("[config_store] WARNING: discarding invalid overlay config: %v", err)
		return false
	}

	cs.mu.Lock()
	cs.settings = s
	cs.mu.Unlock()
	log.Printf("[config_store] restored overlay config %s (active=%v)", s.Config.Name(), s.Active)
	return true
}

// Get returns the current settings.
func (cs *ConfigStore) Get() OverlaySettings {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.settings
}

// Set records new settings, persists them and broadcasts a config_update.
// Persistence failures are logged; the in-memory value still changes.
func (cs *ConfigStore) Set(s OverlaySettings) {
	cs.mu.Lock()
	cs.settings = s
	kv := cs.kv
	cs.mu.Unlock()

	if kv != nil {
		data, err := json.Marshal(s)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			err = kv.Set(ctx, overlayConfigKey, string(data))
			cancel()
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[config_store] WARNING: failed to persist overlay config: %v", err)
		}
	}

	if cs.hub == nil {
		return
	}
	envelope, _ := json.Marshal(map[string]interface{}{
		"type":   "config_update",
		"active": s.Active,
		"config": s.Config,
		"ts":     time.Now().UTC().Format(time.RFC3339Nano),
	})
	cs.hub.sendAll(envelope)
}
