package state

// slab is a dense, reusable integer-id allocator: freed ids are handed
// back out before the slab grows, so ids stay packed regardless of
// churn. Grounded on the teacher's map-of-uint64-id client storage
// (ircd.go's Clients map) generalized into the slab/free-list shape
// original_source's state/mod.rs gets for free from Rust's `slab`
// crate.
type slab struct {
	clients []*Client
	free    []int
}

// insert stores c at the next available id and returns it.
func (s *slab) insert(c *Client) int {
	if n := len(s.free); n > 0 {
		id := s.free[n-1]
		s.free = s.free[:n-1]
		s.clients[id] = c
		return id
	}
	id := len(s.clients)
	s.clients = append(s.clients, c)
	return id
}

// get returns the client at id, or nil if id is unused.
func (s *slab) get(id int) *Client {
	if id < 0 || id >= len(s.clients) {
		return nil
	}
	return s.clients[id]
}

// remove frees id for reuse. It is a no-op if id is already free.
func (s *slab) remove(id int) {
	if id < 0 || id >= len(s.clients) || s.clients[id] == nil {
		return
	}
	s.clients[id] = nil
	s.free = append(s.free, id)
}

// len returns the number of live (non-freed) entries.
func (s *slab) len() int {
	return len(s.clients) - len(s.free)
}

// each calls fn for every live entry.
func (s *slab) each(fn func(id int, c *Client)) {
	for id, c := range s.clients {
		if c != nil {
			fn(id, c)
		}
	}
}
