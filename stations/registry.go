// Package stations holds the ordered, read-only list of playable items offered
// by the server. Station numbers are indexes into that list.
package stations

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/cyberinferno/snowcast/utils"
	"github.com/cyberinferno/snowcast/wire"
)

// MaxStations is the largest station count a Welcome reply can express.
const MaxStations = math.MaxUint16

var (
	// ErrNoStations is returned when a registry would be empty.
	ErrNoStations = errors.New("stations: at least one station is required")
	// ErrTooManyStations is returned when more than MaxStations names are given.
	ErrTooManyStations = errors.New("stations: too many stations")
)

// Registry is an immutable ordered list of station names. It is safe for
// concurrent use because nothing mutates it after New returns.
type Registry struct {
	names     []string
	truncated []int
}

// New builds a registry from names in station order. Names longer than
// wire.MaxTextLength bytes are cut at a rune boundary so every name fits in an
// Announce reply; Truncated reports which ones.
//
// Parameters:
//   - names: Station names; index i becomes station number i
//
// Returns:
//   - The registry
//   - ErrNoStations or ErrTooManyStations when the count is out of range
func New(names []string) (*Registry, error) {
	if len(names) == 0 {
		return nil, ErrNoStations
	}

	if len(names) > MaxStations {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyStations, len(names), MaxStations)
	}

	r := &Registry{names: make([]string, len(names))}
	for i, name := range names {
		fitted, cut := utils.TruncateUTF8(name, wire.MaxTextLength)
		if cut {
			r.truncated = append(r.truncated, i)
		}

		r.names[i] = fitted
	}

	return r, nil
}

// FromArgs expands command line station arguments. Arguments containing glob
// meta characters are expanded with filepath.Glob in sorted order; other
// arguments are taken literally, whether or not such a file exists.
//
// Parameters:
//   - args: Station arguments as given on the command line
//
// Returns:
//   - The registry built from the expanded names
//   - An error for a malformed pattern, a pattern matching nothing, or a count out of range
func FromArgs(args []string) (*Registry, error) {
	var names []string
	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[") {
			names = append(names, arg)
			continue
		}

		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", arg, err)
		}

		if len(matches) == 0 {
			return nil, fmt.Errorf("expand %q: no files match", arg)
		}

		names = append(names, matches...)
	}

	return New(names)
}

// Count returns the number of stations as sent in a Welcome reply.
func (r *Registry) Count() uint16 {
	return uint16(len(r.names))
}

// Len returns the number of stations.
func (r *Registry) Len() int {
	return len(r.names)
}

// Name returns the name of station i.
//
// Returns:
//   - The name and true, or "" and false when i is not a valid station number
func (r *Registry) Name(i int) (string, bool) {
	if i < 0 || i >= len(r.names) {
		return "", false
	}

	return r.names[i], true
}

// Names returns a copy of all station names in order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Truncated returns the station numbers whose names were cut to fit the wire.
func (r *Registry) Truncated() []int {
	out := make([]int, len(r.truncated))
	copy(out, r.truncated)
	return out
}
