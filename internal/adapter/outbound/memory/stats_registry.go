// Package memory holds the in-process, non-persistent adapters backing the
// proxy core: the connection/stats registry and the dashboard session
// store. Neither survives a process restart: persistent connection logs
// are out of scope.
package memory

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Annihilater/net-relay/internal/domain/conn"
)

// StatsRegistry tracks global counters, the live connection set, per-user
// rollups, and a bounded FIFO history of closed connections. The three
// global byte/connection totals are lock-free atomics; the live list,
// history ring, and user map are each guarded by their own RWMutex, held
// only for the in-memory mutation — never across network I/O.
type StatsRegistry struct {
	totalConnections  atomic.Uint64
	totalBytesSent    atomic.Uint64
	totalBytesRecv    atomic.Uint64
	startedAt         time.Time
	maxHistory        int

	liveMu sync.RWMutex
	live   map[string]*conn.Info

	histMu  sync.RWMutex
	history []conn.Info // most-recently-closed last; reversed on read

	userMu sync.RWMutex
	users  map[string]*conn.UserStats
}

// NewStatsRegistry creates an empty registry. maxHistory bounds the FIFO
// history ring (config Stats.MaxHistory); a value <= 0 means unbounded.
func NewStatsRegistry(maxHistory int) *StatsRegistry {
	return &StatsRegistry{
		startedAt:  time.Now(),
		maxHistory: maxHistory,
		live:       make(map[string]*conn.Info),
		users:      make(map[string]*conn.UserStats),
	}
}

// AddConnection registers a newly-connecting connection. It increments
// total_connections, adds info to the live set, and — when info.Username
// is set — lazily creates or bumps that user's rollup.
func (r *StatsRegistry) AddConnection(info conn.Info) {
	r.totalConnections.Add(1)

	stored := info.Clone()
	r.liveMu.Lock()
	r.live[stored.ID] = &stored
	r.liveMu.Unlock()

	if info.Username == "" {
		return
	}
	r.userMu.Lock()
	u, ok := r.users[info.Username]
	if !ok {
		u = &conn.UserStats{Username: info.Username}
		r.users[info.Username] = u
	}
	u.TotalConnections++
	u.ActiveConnections++
	u.LastActivity = time.Now()
	r.userMu.Unlock()
}

// CloseConnection locates the live entry by id, removes it, finalizes its
// byte totals and closed_at, folds the bytes into the global atomics and
// (if it carried a username) that user's rollup, and pushes the finalized
// entry into the history FIFO — dropping the oldest entry first if the
// FIFO is at capacity. A missing id is a silent no-op.
func (r *StatsRegistry) CloseConnection(id string, bytesSent, bytesReceived uint64) {
	r.liveMu.Lock()
	info, ok := r.live[id]
	if ok {
		delete(r.live, id)
	}
	r.liveMu.Unlock()
	if !ok {
		return
	}

	now := time.Now()
	finalized := info.Clone()
	finalized.State = conn.StateClosed
	finalized.ClosedAt = &now
	finalized.BytesSent = bytesSent
	finalized.BytesReceived = bytesReceived

	r.totalBytesSent.Add(bytesSent)
	r.totalBytesRecv.Add(bytesReceived)

	if finalized.Username != "" {
		r.userMu.Lock()
		if u, ok := r.users[finalized.Username]; ok {
			if u.ActiveConnections > 0 {
				u.ActiveConnections--
			}
			u.TotalBytesSent += bytesSent
			u.TotalBytesReceived += bytesReceived
			u.LastActivity = now
		}
		r.userMu.Unlock()
	}

	r.histMu.Lock()
	r.history = append(r.history, finalized)
	if r.maxHistory > 0 && len(r.history) > r.maxHistory {
		r.history = r.history[len(r.history)-r.maxHistory:]
	}
	r.histMu.Unlock()
}

// GetAggregated returns a snapshot of global counters, active count, uptime
// and a copy of every user's rollup.
func (r *StatsRegistry) GetAggregated() conn.AggregatedStats {
	r.liveMu.RLock()
	active := len(r.live)
	r.liveMu.RUnlock()

	r.userMu.RLock()
	users := make(map[string]conn.UserStats, len(r.users))
	for k, v := range r.users {
		users[k] = *v
	}
	r.userMu.RUnlock()

	return conn.AggregatedStats{
		TotalConnections:   r.totalConnections.Load(),
		ActiveConnections:  active,
		TotalBytesSent:     r.totalBytesSent.Load(),
		TotalBytesReceived: r.totalBytesRecv.Load(),
		StartedAt:          r.startedAt,
		UptimeSecs:         int64(time.Since(r.startedAt).Seconds()),
		Users:              users,
	}
}

// GetActive returns a copy of the live connection list.
func (r *StatsRegistry) GetActive() []conn.Info {
	r.liveMu.RLock()
	defer r.liveMu.RUnlock()
	out := make([]conn.Info, 0, len(r.live))
	for _, info := range r.live {
		out = append(out, info.Clone())
	}
	return out
}

// GetHistory returns a most-recent-first copy of the history FIFO,
// truncated to limit entries. limit <= 0 means "all".
func (r *StatsRegistry) GetHistory(limit int) []conn.Info {
	r.histMu.RLock()
	defer r.histMu.RUnlock()

	n := len(r.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]conn.Info, n)
	for i := 0; i < n; i++ {
		out[i] = r.history[len(r.history)-1-i].Clone()
	}
	return out
}

// GetUserStats returns a copy of every user's rollup.
func (r *StatsRegistry) GetUserStats() map[string]conn.UserStats {
	r.userMu.RLock()
	defer r.userMu.RUnlock()
	out := make(map[string]conn.UserStats, len(r.users))
	for k, v := range r.users {
		out[k] = *v
	}
	return out
}

// GetUser returns a copy of a single user's rollup, and whether it exists.
func (r *StatsRegistry) GetUser(name string) (conn.UserStats, bool) {
	r.userMu.RLock()
	defer r.userMu.RUnlock()
	u, ok := r.users[name]
	if !ok {
		return conn.UserStats{}, false
	}
	return *u, true
}
