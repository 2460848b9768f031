package server

import (
	"sort"
	"sync"
	"time"

	"evcs/metrics/counters"
)

// ConnectionInfo is a snapshot of one registered connection
type ConnectionInfo struct {
	ChargePointId string     `json:"charge_point_id"`
	ConnectedAt   time.Time  `json:"connected_at"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
}

type connection struct {
	ws            *WebSocket
	connectedAt   time.Time
	lastHeartbeat *time.Time
}

// Registry maps charge point ids to their open connection; the latest connection wins
type Registry struct {
	mutex       sync.RWMutex
	connections map[string]*connection
}

func NewRegistry() *Registry {
	return &Registry{connections: make(map[string]*connection)}
}

// Register stores the connection and returns the one it replaced, if any
func (r *Registry) Register(id string, ws *WebSocket) *WebSocket {
	r.mutex.Lock()
	var previous *WebSocket
	if existing, ok := r.connections[id]; ok {
		previous = existing.ws
	}
	r.connections[id] = &connection{ws: ws, connectedAt: time.Now().UTC()}
	count := len(r.connections)
	r.mutex.Unlock()
	counters.ObserveConnections(count)
	return previous
}

func (r *Registry) Lookup(id string) *WebSocket {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if c, ok := r.connections[id]; ok {
		return c.ws
	}
	return nil
}

// Unregister removes the entry only while it still points to ws
func (r *Registry) Unregister(id string, ws *WebSocket) bool {
	r.mutex.Lock()
	c, ok := r.connections[id]
	removed := ok && c.ws == ws
	if removed {
		delete(r.connections, id)
	}
	count := len(r.connections)
	r.mutex.Unlock()
	counters.ObserveConnections(count)
	return removed
}

func (r *Registry) ListConnected() []string {
	r.mutex.RLock()
	ids := make([]string, 0, len(r.connections))
	for id := range r.connections {
		ids = append(ids, id)
	}
	r.mutex.RUnlock()
	sort.Strings(ids)
	return ids
}

func (r *Registry) Heartbeat(id string, t time.Time) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if c, ok := r.connections[id]; ok {
		c.lastHeartbeat = &t
	}
}

func (r *Registry) Info(id string) (ConnectionInfo, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	c, ok := r.connections[id]
	if !ok {
		return ConnectionInfo{}, false
	}
	info := ConnectionInfo{ChargePointId: id, ConnectedAt: c.connectedAt}
	if c.lastHeartbeat != nil {
		t := *c.lastHeartbeat
		info.LastHeartbeat = &t
	}
	return info, true
}
