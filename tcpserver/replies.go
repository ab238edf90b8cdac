package tcpserver

import (
	"context"
	"strconv"

	"github.com/cyberinferno/snowcast/cacher"
	"github.com/cyberinferno/snowcast/stations"
	"github.com/cyberinferno/snowcast/wire"
)

// Reply texts for protocol violations.
const (
	msgSetStationBeforeHello = "must send HELLO before SET_STATION"
	msgInvalidStation        = "server received a SET_STATION command with an invalid station number"
	msgRepeatedHello         = "server received more than one HELLO command"
	msgUnrecognizedCommand   = "unrecognized command"
)

// replyCache holds one encoded buffer per distinct reply. Buffers handed out
// are shared by every connection they are queued on and never modified.
type replyCache struct {
	cache    cacher.Cacher[[]byte]
	registry *stations.Registry
}

func newReplyCache(registry *stations.Registry) *replyCache {
	return &replyCache{
		cache:    cacher.NewMemoryCacher[[]byte](cacher.NoExpiration, 0),
		registry: registry,
	}
}

// warm encodes every reply up front so the event loop never allocates one.
func (r *replyCache) warm() {
	r.welcome()
	for i := 0; i < r.registry.Len(); i++ {
		r.announce(i)
	}
	for _, msg := range []string{msgSetStationBeforeHello, msgInvalidStation, msgRepeatedHello, msgUnrecognizedCommand} {
		r.invalid(msg)
	}
}

func (r *replyCache) welcome() []byte {
	return r.get("welcome", func() []byte {
		return wire.EncodeWelcome(r.registry.Count())
	})
}

func (r *replyCache) announce(station int) []byte {
	return r.get("announce:"+strconv.Itoa(station), func() []byte {
		name, _ := r.registry.Name(station)
		return wire.EncodeAnnounce(name)
	})
}

func (r *replyCache) invalid(msg string) []byte {
	return r.get("invalid:"+msg, func() []byte {
		return wire.EncodeInvalid(msg)
	})
}

func (r *replyCache) size() int {
	n, _ := r.cache.ItemCount(context.Background())
	return n
}

func (r *replyCache) get(key string, encode func() []byte) []byte {
	buf, err := r.cache.GetOrFetch(context.Background(), key, cacher.NoExpiration, func(context.Context) ([]byte, error) {
		return encode(), nil
	})
	if err != nil {
		return encode()
	}

	return buf
}
