package mount

// StellariumAdapter exposes a Link/Bridge pair as the two seams
// internal/stellarium needs: dispatching an incoming goto and reporting
// the mount's current position for the broadcast loop (§6).
type StellariumAdapter struct {
	link   *Link
	bridge *Bridge
}

// NewStellariumAdapter wraps link and bridge for consumption by
// internal/stellarium.
func NewStellariumAdapter(link *Link, bridge *Bridge) *StellariumAdapter {
	return &StellariumAdapter{link: link, bridge: bridge}
}

// Goto implements stellarium.GotoHandler.
func (a *StellariumAdapter) Goto(raDeg, decDeg float64) error {
	return a.link.Goto(DegreesToRAString(raDeg), DegreesToDecString(decDeg))
}

// CurrentPosition implements stellarium.PositionSource from the bridge's
// last-refreshed telemetry snapshot.
func (a *StellariumAdapter) CurrentPosition() (raDeg, decDeg float64) {
	state := a.bridge.State()
	if h, m, s, err := ParseRA(state.RA); err == nil {
		raDeg = (float64(h) + float64(m)/60 + float64(s)/3600) * 15
	}
	if neg, d, m, s, err := ParseDec(state.Dec); err == nil {
		decDeg = float64(d) + float64(m)/60 + float64(s)/3600
		if neg {
			decDeg = -decDeg
		}
	}
	return raDeg, decDeg
}
