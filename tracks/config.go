package tracks

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/gaecom/substrate/curve"
	"github.com/gaecom/substrate/types"
)

type (
	fileConfig struct {
		Tracks []trackConfig `yaml:"tracks"`
	}

	trackConfig struct {
		ID                  types.TrackID   `yaml:"id"`
		Name                string          `yaml:"name"`
		Origins             []string        `yaml:"origins,omitempty"`
		MaxDeciding         uint32          `yaml:"max_deciding"`
		DecisionDeposit     types.Balance   `yaml:"decision_deposit"`
		PreparePeriod       uint64          `yaml:"prepare_period"`
		DecisionPeriod      uint64          `yaml:"decision_period"`
		ConfirmPeriod       uint64          `yaml:"confirm_period"`
		MinEnactmentPeriod  uint64          `yaml:"min_enactment_period"`
		MinApproval         curveConfig     `yaml:"min_approval"`
		MinTurnout          curveConfig     `yaml:"min_turnout"`
		OnRejection         RejectionPolicy `yaml:"on_rejection"`
		TimeoutOnLowTurnout bool            `yaml:"timeout_on_low_turnout"`
	}

	// curveConfig is the union of all curve parameters, fractions are
	// written as percentages ("55%") or parts per billion.
	curveConfig struct {
		Type    string `yaml:"type"`
		Begin   string `yaml:"begin,omitempty"`
		Delta   string `yaml:"delta,omitempty"`
		End     string `yaml:"end,omitempty"`
		Step    string `yaml:"step,omitempty"`
		Period  string `yaml:"period,omitempty"`
		Factor  uint64 `yaml:"factor,omitempty"`
		XOffset uint64 `yaml:"x_offset,omitempty"`
		YOffset int64  `yaml:"y_offset,omitempty"`
	}
)

// LoadFile reads track registry from YAML file.
func LoadFile(filename string) (*Registry, error) {
	f, err := os.Open(filepath.Clean(filename))
	if err != nil {
		return nil, fmt.Errorf("opening tracks file: %w", err)
	}
	defer f.Close()

	r, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("loading tracks from %s: %w", filename, err)
	}
	return r, nil
}

func Parse(r io.Reader) (*Registry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var cfg fileConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding tracks: %w", err)
	}

	entries := make([]Entry, 0, len(cfg.Tracks))
	for i, tc := range cfg.Tracks {
		e, err := tc.entry()
		if err != nil {
			return nil, fmt.Errorf("track[%d] %q: %w", i, tc.Name, err)
		}
		entries = append(entries, e)
	}
	return New(entries...)
}

func (tc trackConfig) entry() (Entry, error) {
	approval, err := tc.MinApproval.curve()
	if err != nil {
		return Entry{}, fmt.Errorf("min_approval: %w", err)
	}
	turnout, err := tc.MinTurnout.curve()
	if err != nil {
		return Entry{}, fmt.Errorf("min_turnout: %w", err)
	}
	policy := tc.OnRejection
	if policy == "" {
		policy = RefundOnRejection
	}
	return Entry{
		ID:      tc.ID,
		Origins: tc.Origins,
		Track: Track{
			Name:                tc.Name,
			MaxDeciding:         tc.MaxDeciding,
			DecisionDeposit:     tc.DecisionDeposit,
			PreparePeriod:       tc.PreparePeriod,
			DecisionPeriod:      tc.DecisionPeriod,
			ConfirmPeriod:       tc.ConfirmPeriod,
			MinEnactmentPeriod:  tc.MinEnactmentPeriod,
			MinApproval:         approval,
			MinTurnout:          turnout,
			OnRejection:         policy,
			TimeoutOnLowTurnout: tc.TimeoutOnLowTurnout,
		},
	}, nil
}

func (cc curveConfig) curve() (curve.Curve, error) {
	p := perbillParser{}
	switch cc.Type {
	case curve.KindLinearDecreasing:
		c := curve.LinearDecreasing{Begin: p.parse("begin", cc.Begin), Delta: p.parse("delta", cc.Delta)}
		return c, p.err
	case curve.KindSteppedDecreasing:
		c := curve.SteppedDecreasing{
			Begin:  p.parse("begin", cc.Begin),
			End:    p.parse("end", cc.End),
			Step:   p.parse("step", cc.Step),
			Period: p.parse("period", cc.Period),
		}
		return c, p.err
	case curve.KindReciprocal:
		return curve.Reciprocal{Factor: cc.Factor, XOffset: cc.XOffset, YOffset: cc.YOffset}, nil
	case "":
		return nil, fmt.Errorf("curve type is not set")
	default:
		return nil, fmt.Errorf("unknown curve type %q", cc.Type)
	}
}

// perbillParser remembers the first error so that curve literals can be
// built in one expression.
type perbillParser struct {
	err error
}

func (p *perbillParser) parse(name, value string) types.Perbill {
	if p.err != nil {
		return 0
	}
	if value == "" {
		return 0
	}
	v, err := types.ParsePerbill(value)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", name, err)
	}
	return v
}

// Marshal encodes the registry in the format accepted by Parse.
func (r *Registry) Marshal() ([]byte, error) {
	cfg := fileConfig{Tracks: make([]trackConfig, 0, len(r.entries))}
	for _, e := range r.entries {
		approval, err := curveToConfig(e.Track.MinApproval)
		if err != nil {
			return nil, err
		}
		turnout, err := curveToConfig(e.Track.MinTurnout)
		if err != nil {
			return nil, err
		}
		cfg.Tracks = append(cfg.Tracks, trackConfig{
			ID:                  e.ID,
			Name:                e.Track.Name,
			Origins:             e.Origins,
			MaxDeciding:         e.Track.MaxDeciding,
			DecisionDeposit:     e.Track.DecisionDeposit,
			PreparePeriod:       e.Track.PreparePeriod,
			DecisionPeriod:      e.Track.DecisionPeriod,
			ConfirmPeriod:       e.Track.ConfirmPeriod,
			MinEnactmentPeriod:  e.Track.MinEnactmentPeriod,
			MinApproval:         approval,
			MinTurnout:          turnout,
			OnRejection:         e.Track.OnRejection,
			TimeoutOnLowTurnout: e.Track.TimeoutOnLowTurnout,
		})
	}
	buf := &bytes.Buffer{}
	enc := yaml.NewEncoder(buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encoding tracks: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func curveToConfig(c curve.Curve) (curveConfig, error) {
	switch c := c.(type) {
	case curve.LinearDecreasing:
		return curveConfig{Type: c.Kind(), Begin: c.Begin.String(), Delta: c.Delta.String()}, nil
	case curve.SteppedDecreasing:
		return curveConfig{Type: c.Kind(), Begin: c.Begin.String(), End: c.End.String(), Step: c.Step.String(), Period: c.Period.String()}, nil
	case curve.Reciprocal:
		return curveConfig{Type: c.Kind(), Factor: c.Factor, XOffset: c.XOffset, YOffset: c.YOffset}, nil
	default:
		return curveConfig{}, fmt.Errorf("unsupported curve %T", c)
	}
}
