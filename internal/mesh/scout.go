package mesh

import (
	"strings"
	"time"
)

// Scout reports sessions whose role matches the what filter: already
// joined sessions immediately, sessions joining during the window as
// they arrive. deliver runs on a mesh goroutine; Scout returns without
// waiting. what is a comma-free role filter ("router", "peer",
// "client") or "router|peer" style union; empty matches router|peer.
func (m *Mesh) Scout(what string, window time.Duration, deliver func(SessionInfo)) {
	match := roleFilter(what)

	arrivals := make(chan SessionInfo, 16)
	m.mu.Lock()
	wid := m.id()
	m.watchers[wid] = arrivals
	var present []SessionInfo
	for _, info := range m.sessions {
		if match(info.WhatAmI) {
			present = append(present, info)
		}
	}
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.watchers, wid)
			m.mu.Unlock()
		}()
		seen := make(map[string]bool, len(present))
		for _, info := range present {
			if !seen[info.ZID] {
				seen[info.ZID] = true
				deliver(info)
			}
		}
		deadline := time.NewTimer(window)
		defer deadline.Stop()
		for {
			select {
			case <-deadline.C:
				return
			case info := <-arrivals:
				if match(info.WhatAmI) && !seen[info.ZID] {
					seen[info.ZID] = true
					deliver(info)
				}
			}
		}
	}()
}

func roleFilter(what string) func(string) bool {
	if what == "" {
		what = "router|peer"
	}
	roles := make(map[string]bool)
	for _, r := range strings.Split(what, "|") {
		roles[strings.TrimSpace(r)] = true
	}
	return func(role string) bool { return roles[role] }
}
