package providers

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
)

// ErrHandlersChanged rejects a reload whose handler declarations differ from
// the ones registered at startup; handlers only change on restart.
var ErrHandlersChanged = errors.New("handler declarations changed, restart to apply them")

// Store holds the current snapshot. Reloads swap the pointer; a snapshot is
// never mutated once published.
type Store struct {
	current atomic.Pointer[Snapshot]
	loader  *Loader
	path    string
}

// NewStore creates a store serving snapshot
func NewStore(snapshot *Snapshot) *Store {
	s := &Store{loader: NewLoader()}
	s.current.Store(snapshot)
	return s
}

// OpenStore loads path and returns a store that can Reload it
func OpenStore(loader *Loader, path string) (*Store, error) {
	snapshot, err := loader.Load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{loader: loader, path: path}
	s.current.Store(snapshot)
	return s, nil
}

// Current returns the snapshot in effect
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Get looks a provider up in the current snapshot
func (s *Store) Get(name string) (Provider, bool) {
	return s.Current().Get(name)
}

// List returns the providers of the current snapshot sorted by name
func (s *Store) List() []Provider {
	return s.Current().List()
}

// Swap publishes a new snapshot
func (s *Store) Swap(snapshot *Snapshot) {
	s.current.Store(snapshot)
}

// Reload re-reads the file the store was opened with. Only provider policy
// may change; a file that adds, drops or edits handlers is refused. On error
// the current snapshot stays in place.
func (s *Store) Reload() error {
	if s.path == "" {
		return fmt.Errorf("store has no providers file to reload")
	}
	snapshot, err := s.loader.Load(s.path)
	if err != nil {
		return fmt.Errorf("reloading providers: %w", err)
	}
	if !reflect.DeepEqual(handlerSet(s.Current()), handlerSet(snapshot)) {
		return fmt.Errorf("reloading providers: %w", ErrHandlersChanged)
	}
	s.Swap(snapshot)
	return nil
}

// handlerSet maps each provider with handlers to its declarations
func handlerSet(snapshot *Snapshot) map[string][]HandlerSpec {
	out := make(map[string][]HandlerSpec)
	for _, p := range snapshot.List() {
		if len(p.Handlers) > 0 {
			out[p.Name] = p.Handlers
		}
	}
	return out
}
