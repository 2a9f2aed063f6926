/*
Package tracks holds the static per-track configuration of the referendum
engine and classifies proposal origins into tracks.
*/
package tracks

import (
	"errors"
	"fmt"

	"github.com/gaecom/substrate/curve"
	"github.com/gaecom/substrate/types"
)

var (
	ErrUnclassifiable = errors.New("origin has no track")
	ErrUnknownTrack   = errors.New("unknown track")
)

type Entry struct {
	ID    types.TrackID
	Track Track
	// Origins routed to the track: origin class ("root", "none", "signed")
	// or exact origin ("signed:42").
	Origins []string
}

/*
Registry is the immutable set of tracks. Exact origin mappings take
precedence over origin class mappings.
*/
type Registry struct {
	entries []Entry
	byID    map[types.TrackID]int
	origins map[string]types.TrackID
}

func New(entries ...Entry) (*Registry, error) {
	if len(entries) == 0 {
		return nil, errors.New("no tracks defined")
	}
	r := &Registry{
		entries: make([]Entry, 0, len(entries)),
		byID:    make(map[types.TrackID]int, len(entries)),
		origins: make(map[string]types.TrackID),
	}
	for _, e := range entries {
		if _, ok := r.byID[e.ID]; ok {
			return nil, fmt.Errorf("duplicate track id %d", e.ID)
		}
		if err := e.Track.IsValid(); err != nil {
			return nil, fmt.Errorf("invalid track %d (%s): %w", e.ID, e.Track.Name, err)
		}
		for _, o := range e.Origins {
			key, err := originKey(o)
			if err != nil {
				return nil, fmt.Errorf("track %d: %w", e.ID, err)
			}
			if prev, ok := r.origins[key]; ok {
				return nil, fmt.Errorf("origin %q is mapped to both track %d and track %d", key, prev, e.ID)
			}
			r.origins[key] = e.ID
		}
		r.byID[e.ID] = len(r.entries)
		r.entries = append(r.entries, e)
	}
	return r, nil
}

func originKey(s string) (string, error) {
	switch s {
	case "root", "none", "signed":
		return s, nil
	}
	o, err := types.ParseOrigin(s)
	if err != nil {
		return "", err
	}
	return o.String(), nil
}

// Tracks returns the tracks in the order they were registered.
func (r *Registry) Tracks() []Entry {
	return append([]Entry(nil), r.entries...)
}

func (r *Registry) Track(id types.TrackID) (*Track, error) {
	idx, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTrack, id)
	}
	return &r.entries[idx].Track, nil
}

func (r *Registry) TrackFor(origin types.Origin) (types.TrackID, error) {
	if id, ok := r.origins[origin.String()]; ok {
		return id, nil
	}
	if id, ok := r.origins[origin.Class()]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnclassifiable, origin)
}

/*
Default returns the registry used in tests and local simulations:
"root" (track 0) for the root origin and "none" (track 1) for the none
origin. Signed origins are not classified.
*/
func Default() *Registry {
	r, err := New(
		Entry{
			ID:      0,
			Origins: []string{"root"},
			Track: Track{
				Name:               "root",
				MaxDeciding:        1,
				DecisionDeposit:    10,
				PreparePeriod:      4,
				DecisionPeriod:     4,
				ConfirmPeriod:      4,
				MinEnactmentPeriod: 4,
				MinApproval:        curve.LinearDecreasing{Begin: types.FromPercent(100), Delta: types.FromPercent(50)},
				MinTurnout:         curve.LinearDecreasing{Begin: types.FromPercent(100), Delta: types.FromPercent(100)},
				OnRejection:        RefundOnRejection,
			},
		},
		Entry{
			ID:      1,
			Origins: []string{"none"},
			Track: Track{
				Name:               "none",
				MaxDeciding:        3,
				DecisionDeposit:    1,
				PreparePeriod:      2,
				DecisionPeriod:     2,
				ConfirmPeriod:      2,
				MinEnactmentPeriod: 2,
				MinApproval:        curve.LinearDecreasing{Begin: types.FromPercent(55), Delta: types.FromPercent(5)},
				MinTurnout:         curve.LinearDecreasing{Begin: types.FromPercent(10), Delta: types.FromPercent(10)},
				OnRejection:        RefundOnRejection,
			},
		},
	)
	if err != nil {
		panic(fmt.Errorf("default tracks: %w", err))
	}
	return r
}
