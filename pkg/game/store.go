package game

// Store is the table of live sessions keyed by id, with an index of the
// unfinished game each user plays. Not safe for concurrent use.
type Store struct {
	sessions map[string]*Session
	active   map[string]string
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		active:   make(map[string]string),
	}
}

// Add registers a session and marks both players as busy.
func (st *Store) Add(s *Session) {
	st.sessions[s.ID] = s
	if !s.Ended {
		st.active[s.White.UserID] = s.ID
		st.active[s.Black.UserID] = s.ID
	}
}

// Get returns a session by ID
func (st *Store) Get(id string) (*Session, bool) {
	s, ok := st.sessions[id]
	return s, ok
}

// Remove evicts a session.
func (st *Store) Remove(id string) {
	s, ok := st.sessions[id]
	if !ok {
		return
	}
	st.Release(s)
	delete(st.sessions, id)
}

// Release clears the busy index of both players if it still points at s.
func (st *Store) Release(s *Session) {
	for _, uid := range s.UserIDs() {
		if st.active[uid] == s.ID {
			delete(st.active, uid)
		}
	}
}

// ActiveByUser returns the unfinished game userID plays.
func (st *Store) ActiveByUser(userID string) (*Session, bool) {
	id, ok := st.active[userID]
	if !ok {
		return nil, false
	}
	s, ok := st.sessions[id]
	if !ok || s.Ended {
		return nil, false
	}
	return s, true
}

// Len returns the number of stored sessions, ended ones included.
func (st *Store) Len() int {
	return len(st.sessions)
}

// Active returns the number of games still in progress.
func (st *Store) Active() int {
	n := 0
	for _, s := range st.sessions {
		if !s.Ended {
			n++
		}
	}
	return n
}

// List returns every stored session.
func (st *Store) List() []*Session {
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	return out
}
