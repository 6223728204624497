package application

// routingMatrix maps channel id to bus id to enabled. It is owned by the
// engine and guarded by the engine lock.
type routingMatrix struct {
	routes map[string]map[string]bool
}

func newRoutingMatrix() *routingMatrix {
	return &routingMatrix{routes: make(map[string]map[string]bool)}
}

func (m *routingMatrix) set(channelID, busID string, enabled bool) {
	row, ok := m.routes[channelID]
	if !ok {
		row = make(map[string]bool)
		m.routes[channelID] = row
	}
	row[busID] = enabled
}

func (m *routingMatrix) enabled(channelID, busID string) bool {
	return m.routes[channelID][busID]
}

// row returns a copy with an entry for every bus in busIDs.
func (m *routingMatrix) row(channelID string, busIDs []string) map[string]bool {
	out := make(map[string]bool, len(busIDs))
	for _, id := range busIDs {
		out[id] = m.routes[channelID][id]
	}
	return out
}
