package tcpserver

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/snowcast/stations"
)

func TestView(t *testing.T) {
	v := newView()

	a := testSession(Handle{Index: 1}, 9)
	b := testSession(Handle{Index: 0}, 4)
	b.station, b.state, b.udpPort = 1, Tuned, 5000
	c := testSession(Handle{Index: 2}, 6)
	c.station, c.state = 1, Tuned

	for _, s := range []*Session{a, b, c} {
		v.publish(s)
	}

	t.Run("sessions are ordered by serial", func(t *testing.T) {
		var serials []uint32
		for _, info := range v.Sessions() {
			serials = append(serials, info.Serial)
		}
		assert.Equal(t, []uint32{4, 6, 9}, serials)
	})

	t.Run("get returns a copy of the published state", func(t *testing.T) {
		info, ok := v.Get(4)
		require.True(t, ok)
		assert.Equal(t, Tuned, info.State)
		assert.Equal(t, uint16(5000), info.UDPPort)

		b.station = 0
		info, _ = v.Get(4)
		assert.Equal(t, 1, info.Station, "unpublished changes are not visible")
	})

	t.Run("listeners per station", func(t *testing.T) {
		assert.Equal(t, []int{0, 2}, v.Listeners(2))
		assert.Equal(t, []int{0}, v.Listeners(1), "stations beyond count are ignored")
	})

	t.Run("remove", func(t *testing.T) {
		v.remove(6)
		v.remove(100)
		assert.Equal(t, 2, v.Len())
		_, ok := v.Get(6)
		assert.False(t, ok)
	})
}

func TestMetrics(t *testing.T) {
	t.Run("nil metrics record nothing", func(t *testing.T) {
		var m *metrics
		assert.NotPanics(t, func() {
			m.connectionAccepted()
			m.connectionRejected()
			m.connectionReset(reasonHangup)
			m.command("hello")
			m.cycle(0, 0)
		})
		assert.Nil(t, newMetrics(nil, newView(), nil))
	})

	t.Run("counters and live gauge", func(t *testing.T) {
		registry, err := stations.New([]string{"a", "b"})
		require.NoError(t, err)
		reg := prometheus.NewRegistry()
		m := newMetrics(reg, newView(), registry)

		m.connectionAccepted()
		m.connectionAccepted()
		m.connectionReset(reasonPeerClosed)
		m.command("hello")

		assert.Equal(t, 2.0, testutil.ToFloat64(m.accepted))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.live))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.resets.WithLabelValues(reasonPeerClosed)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("hello")))

		count, err := testutil.GatherAndCount(reg, "snowcast_station_listeners")
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}
