package gateway

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"ocppgate/pkg/ocpp"
)

// stationManager tracks the charge boxes seen on the JSON transport. Calls
// from one charge box are handled one at a time; adapters that need strict
// ordering deliver a box's frames sequentially.
type stationManager struct {
	log      *slog.Logger
	accepted map[string]ocpp.Version

	mu       sync.RWMutex
	stations map[string]*station
}

// station is the mutable state kept for one charge box.
type station struct {
	callMu sync.Mutex

	mu          sync.Mutex
	subProtocol string
	lastSeen    time.Time
}

// newStationManager resolves the accepted sub-protocols once. An empty list
// accepts every known version.
func newStationManager(versions []string, log *slog.Logger) (*stationManager, error) {
	if log == nil {
		log = slog.Default()
	}

	accepted := make(map[string]ocpp.Version, len(versions))
	for _, raw := range versions {
		v, err := ocpp.ParseVersion(raw)
		if err != nil {
			return nil, fmt.Errorf("json versions: %w", err)
		}
		accepted[v.SubProtocol()] = v
	}
	if len(accepted) == 0 {
		for _, v := range ocpp.Versions {
			accepted[v.SubProtocol()] = v
		}
	}

	return &stationManager{
		log:      log.With("component", "gateway.stations"),
		accepted: accepted,
		stations: make(map[string]*station),
	}, nil
}

// Accepts reports whether frames negotiated with subProtocol are served. An
// empty sub-protocol means the adapter did not negotiate one.
func (m *stationManager) Accepts(subProtocol string) bool {
	if subProtocol == "" {
		return true
	}
	_, ok := m.accepted[subProtocol]
	return ok
}

// Serve runs fn while holding the charge box's call lock.
func (m *stationManager) Serve(chargeBoxID string, subProtocol string, fn func() string) string {
	st := m.stationFor(chargeBoxID)

	st.mu.Lock()
	if subProtocol != "" && st.subProtocol != subProtocol {
		if st.subProtocol != "" {
			m.log.Info("Charge box changed sub-protocol", "charge_box_id", chargeBoxID, "from", st.subProtocol, "to", subProtocol)
		}
		st.subProtocol = subProtocol
	}
	st.lastSeen = time.Now().UTC()
	st.mu.Unlock()

	st.callMu.Lock()
	defer st.callMu.Unlock()
	return fn()
}

// Touch records activity without taking the call lock.
func (m *stationManager) Touch(chargeBoxID string) {
	st := m.stationFor(chargeBoxID)
	st.mu.Lock()
	st.lastSeen = time.Now().UTC()
	st.mu.Unlock()
}

// stationFor returns an existing station or lazily registers a new one.
func (m *stationManager) stationFor(chargeBoxID string) *station {
	m.mu.RLock()
	st, ok := m.stations[chargeBoxID]
	m.mu.RUnlock()
	if ok {
		return st
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok = m.stations[chargeBoxID]
	if ok {
		return st
	}
	st = &station{}
	m.stations[chargeBoxID] = st
	m.log.Debug("Charge box registered", "charge_box_id", chargeBoxID)
	return st
}

// Known lists the charge box ids seen so far, sorted.
func (m *stationManager) Known() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.stations))
	for id := range m.stations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close drops all tracked stations.
func (m *stationManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range m.stations {
		delete(m.stations, id)
	}
}
