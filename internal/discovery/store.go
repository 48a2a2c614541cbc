package discovery

import "sync"

// Change describes what Store.Insert did with a host
type Change int

const (
	// ChangeAdded means the host's URL was new
	ChangeAdded Change = iota
	// ChangeMerged means the host was folded into an existing entry
	ChangeMerged
	// ChangeIgnored means the host had no URL and was not stored
	ChangeIgnored
)

// String returns the change name
func (c Change) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeMerged:
		return "merged"
	default:
		return "ignored"
	}
}

// Store holds verified hosts keyed by URL. The first host seen for a URL keeps
// its name and IP; later ones only contribute their description.
//
// Store is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	byURL map[string]*Host
	order []string
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{byURL: make(map[string]*Host)}
}

// Insert adds host or merges it into the entry with the same URL. It returns
// what happened and a copy of the resulting entry.
func (s *Store) Insert(host *Host) (Change, Host) {
	if host == nil || host.URL == "" {
		return ChangeIgnored, Host{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byURL[host.URL]; ok {
		existing.AppendDescription(host.Description)
		return ChangeMerged, *existing
	}

	entry := host.Clone()
	s.byURL[entry.URL] = entry
	s.order = append(s.order, entry.URL)
	return ChangeAdded, *entry
}

// Get returns a copy of the entry for url
func (s *Store) Get(url string) (Host, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.byURL[url]
	if !ok {
		return Host{}, false
	}
	return *h, true
}

// Values returns a snapshot of all entries in insertion order
func (s *Store) Values() []Host {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Host, 0, len(s.order))
	for _, url := range s.order {
		out = append(out, *s.byURL[url])
	}
	return out
}

// Len returns the number of entries
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Clear removes every entry
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byURL = make(map[string]*Host)
	s.order = nil
}
