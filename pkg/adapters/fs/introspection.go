package fs

import (
	"sort"
	"time"

	"github.com/aretw0/introspection"
)

// BucketState exposes internal state for observability.
type BucketState struct {
	Path        string     `json:"path"`
	SystemDir   string     `json:"system_dir"`
	Format      string     `json:"format"`
	ReadOnly    bool       `json:"read_only"`
	Serializers []string   `json:"serializers"`
	Watchers    int        `json:"watchers"`
	LastEvent   *time.Time `json:"last_event,omitempty"`
}

// State implements introspection.Introspectable.
func (b *Bucket) State() any {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()

	serializers := make([]string, 0, len(b.serializers))
	for ext := range b.serializers {
		serializers = append(serializers, ext)
	}
	sort.Strings(serializers)

	return BucketState{
		Path:        b.Path,
		SystemDir:   b.config.SystemDir,
		Format:      b.config.Format,
		ReadOnly:    b.config.ReadOnly,
		Serializers: serializers,
		Watchers:    b.watchers,
		LastEvent:   b.lastEvent,
	}
}

// ComponentType implements introspection.Component.
func (b *Bucket) ComponentType() string {
	return "fs"
}

var _ introspection.Introspectable = (*Bucket)(nil)
var _ introspection.Component = (*Bucket)(nil)

func (b *Bucket) setWatchers(delta int) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	b.watchers += delta
}

func (b *Bucket) recordEvent() {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	now := time.Now()
	b.lastEvent = &now
}
