package metrics

import "sync"

// Drop reasons counted by the relay. Forwarding drops are silent rather than
// client-visible errors, so counters are the only operational trace they
// leave.
const (
	DropReasonDeliveryMiss  = "relay_delivery_miss"
	DropReasonRoomNotFound  = "room_not_found"
	DropReasonNotAMember    = "not_a_member"
	DropReasonRateLimited   = "rate_limited"
	DropReasonMalformed     = "malformed_message"
	DropReasonSendQueueFull = "send_queue_full"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// A deployment scrapes it via PrometheusHandler; the registry itself stays
// backend-agnostic so relay logic remains testable without a metrics server.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, n uint64) {
	m.mu.Lock()
	m.m[name] += n
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
