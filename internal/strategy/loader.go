// Package strategy loads the declared multi-leg strategies from a TOML file
// and keeps the active set for the scheduler and the API.
package strategy

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// rawLeg is a leg as written in the strategies file.
type rawLeg struct {
	Market  string `toml:"market"`
	Outcome string `toml:"outcome"`
}

// rawStrategy is one [[strategy]] table.
type rawStrategy struct {
	Name        string   `toml:"name"`
	Description string   `toml:"description"`
	Subtitle    string   `toml:"subtitle"`
	Method      string   `toml:"method"`
	Positions   []rawLeg `toml:"positions"`
	SideA       []rawLeg `toml:"side_a"`
	SideB       []rawLeg `toml:"side_b"`
}

type rawFile struct {
	Strategies []rawStrategy `toml:"strategy"`
}

// LoadFile reads and validates a strategies file.
func LoadFile(path string) ([]domain.Strategy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("strategy: open %s: %w", path, err)
	}
	defer f.Close()
	out, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("strategy: %s: %w", path, err)
	}
	return out, nil
}

// Decode parses strategies from TOML and validates them. Every problem is
// reported, not just the first.
func Decode(r io.Reader) ([]domain.Strategy, error) {
	var file rawFile
	md, err := toml.NewDecoder(r).Decode(&file)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys %s", domain.ErrInvalidStrategy, strings.Join(keys, ", "))
	}

	out := make([]domain.Strategy, 0, len(file.Strategies))
	seen := make(map[string]bool, len(file.Strategies))
	var errs []error
	for i, s := range file.Strategies {
		st := s.toDomain()
		if err := st.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("strategy #%d: %w", i+1, err))
			continue
		}
		if seen[st.Name] {
			errs = append(errs, fmt.Errorf("strategy #%d: %w: duplicate name %q", i+1, domain.ErrInvalidStrategy, st.Name))
			continue
		}
		seen[st.Name] = true
		out = append(out, st)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no strategies declared", domain.ErrInvalidStrategy)
	}
	return out, nil
}

func (s rawStrategy) toDomain() domain.Strategy {
	desc := s.Description
	if desc == "" {
		desc = s.Subtitle
	}
	return domain.Strategy{
		Name:        strings.TrimSpace(s.Name),
		Description: strings.TrimSpace(desc),
		Method:      domain.Method(strings.ToLower(strings.TrimSpace(s.Method))),
		Positions:   toLegs(s.Positions),
		SideA:       toLegs(s.SideA),
		SideB:       toLegs(s.SideB),
	}
}

func toLegs(in []rawLeg) []domain.TradeLeg {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.TradeLeg, len(in))
	for i, l := range in {
		out[i] = domain.TradeLeg{MarketSlug: strings.TrimSpace(l.Market), Outcome: strings.TrimSpace(l.Outcome)}
	}
	return out
}
