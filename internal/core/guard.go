package core

import "sync/atomic"

// Guard is the process-wide review flag. While engaged, suggestion promotion
// and candidate persistence are suspended so the queue the user is reviewing
// never mutates mid-session. Deferred work resumes once released.
type Guard struct {
	engaged atomic.Bool
}

// Set engages or releases the guard.
func (g *Guard) Set(v bool) {
	g.engaged.Store(v)
}

// Engaged reports whether a review session is in progress.
func (g *Guard) Engaged() bool {
	return g.engaged.Load()
}
