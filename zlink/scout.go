package zlink

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zlinklabs/zlink-go/internal/mesh"
)

// WhatAmI filters the roles a scout listens for.
type WhatAmI string

const (
	WhatRouter WhatAmI = "router"
	WhatPeer   WhatAmI = "peer"
	// WhatRouterPeer matches both routers and peers (default).
	WhatRouterPeer WhatAmI = "router|peer"
)

// ScoutTimeout is the fixed discovery window.
const ScoutTimeout = 1 * time.Second

// Hello is one discovered participant.
type Hello struct {
	WhatAmI WhatAmI `json:"whatami"`
	ZID     string  `json:"zid"`
}

// JSON renders the hello as the structured discovery event string.
func (h Hello) JSON() string {
	payload := struct {
		Event   string  `json:"event"`
		WhatAmI WhatAmI `json:"whatami"`
		ZID     string  `json:"zid"`
	}{Event: "peer_discovered", WhatAmI: h.WhatAmI, ZID: h.ZID}
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(data)
}

// HelloHandler receives discovered participants, one call per
// participant, on substrate-owned goroutines.
type HelloHandler func(Hello)

// Scout runs a time-bounded discovery probe outside any session. what
// filters responder roles; cfg may be nil for defaults (a configuration
// with multicast discovery disabled yields no discoveries). Each
// participant is reported at most once. Scout returns immediately; the
// probe ends after ScoutTimeout.
func Scout(what WhatAmI, cfg *Config, cb HelloHandler) error {
	return scoutOn(mesh.Default(), what, cfg, cb)
}

func scoutOn(m *mesh.Mesh, what WhatAmI, cfg *Config, cb HelloHandler) error {
	if cb == nil {
		return fmt.Errorf("%w: scout callback cannot be nil", ErrGetDispatchFailed)
	}
	if cfg != nil && !cfg.multicastEnabled() {
		return nil
	}
	if what == "" {
		what = WhatRouterPeer
	}
	m.Scout(string(what), ScoutTimeout, func(info mesh.SessionInfo) {
		_ = safeCall(func() { cb(Hello{WhatAmI: WhatAmI(info.WhatAmI), ZID: info.ZID}) })
	})
	return nil
}
