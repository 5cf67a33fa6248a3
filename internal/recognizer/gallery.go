package recognizer

import (
	"maps"
	"sync"
	"sync/atomic"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/feature"
)

// Gallery holds one profile vector per identity. Readers work on an
// immutable snapshot; writers are serialized and publish a fresh copy, so
// a reader sees either the old or the new profile of an identity.
type Gallery struct {
	mu   sync.Mutex
	snap atomic.Pointer[map[string]feature.Vector]
}

func NewGallery() *Gallery {
	g := &Gallery{}
	empty := map[string]feature.Vector{}
	g.snap.Store(&empty)
	return g
}

// Snapshot returns the current profiles. The map and its vectors must be
// treated as read-only.
func (g *Gallery) Snapshot() map[string]feature.Vector {
	return *g.snap.Load()
}

func (g *Gallery) Get(id string) (feature.Vector, bool) {
	v, ok := g.Snapshot()[id]
	return v, ok
}

func (g *Gallery) Len() int {
	return len(g.Snapshot())
}

// Put installs or replaces a profile.
func (g *Gallery) Put(id string, v feature.Vector) {
	vec := append(feature.Vector(nil), v...)
	g.update(func(m map[string]feature.Vector) { m[id] = vec })
}

func (g *Gallery) Delete(id string) {
	g.update(func(m map[string]feature.Vector) { delete(m, id) })
}

// Replace swaps in a complete set of profiles.
func (g *Gallery) Replace(profiles map[string]feature.Vector) {
	next := make(map[string]feature.Vector, len(profiles))
	for id, v := range profiles {
		next[id] = append(feature.Vector(nil), v...)
	}
	g.mu.Lock()
	g.snap.Store(&next)
	g.mu.Unlock()
}

func (g *Gallery) update(fn func(map[string]feature.Vector)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	next := maps.Clone(*g.snap.Load())
	fn(next)
	g.snap.Store(&next)
}
