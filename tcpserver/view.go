package tcpserver

import (
	"sort"
	"time"

	"github.com/cyberinferno/snowcast/safemap"
)

// SessionInfo is a point-in-time copy of a session's observable state.
type SessionInfo struct {
	Serial  uint32
	Handle  Handle
	Peer    string
	State   SessionState
	Station int
	UDPPort uint16
	Since   time.Time
}

// View is the server's published list of live connections. The event loop
// is the only writer; any goroutine may read it.
type View struct {
	sessions *safemap.SafeMap[uint32, SessionInfo]
}

func newView() *View {
	return &View{sessions: safemap.NewSafeMap[uint32, SessionInfo]()}
}

func (v *View) publish(s *Session) {
	v.sessions.Store(s.serial, SessionInfo{
		Serial:  s.serial,
		Handle:  s.handle,
		Peer:    s.peer,
		State:   s.state,
		Station: s.station,
		UDPPort: s.udpPort,
		Since:   s.since,
	})
}

func (v *View) remove(serial uint32) {
	v.sessions.Delete(serial)
}

// Len returns the number of live connections.
func (v *View) Len() int {
	return v.sessions.Len()
}

// Get returns the published state of the connection with the given serial.
func (v *View) Get(serial uint32) (SessionInfo, bool) {
	return v.sessions.Load(serial)
}

// Sessions returns every live connection ordered by serial.
func (v *View) Sessions() []SessionInfo {
	out := v.sessions.Values()
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}

// Listeners counts tuned connections per station for stations [0, count).
func (v *View) Listeners(count int) []int {
	out := make([]int, count)
	v.sessions.Range(func(_ uint32, info SessionInfo) bool {
		if info.Station >= 0 && info.Station < count {
			out[info.Station]++
		}
		return true
	})
	return out
}
