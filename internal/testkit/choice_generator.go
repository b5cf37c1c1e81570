package testkit

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"

	"kickchoice/domain/choice"
)

// PanelGeneratorConfig configures the synthetic choice panel generator.
// Utilities are ASC_j + Slope_j * x + RandomIntercept * omega_i (on
// RandomAlternatives only) + Gumbel noise, with x ~ N(0,1) per occasion and
// omega_i ~ N(0,1) per individual.
type PanelGeneratorConfig struct {
	Individuals        int                      `json:"individuals"`
	MinOccasions       int                      `json:"min_occasions"`
	MaxOccasions       int                      `json:"max_occasions"`
	OccasionChoices    []int                    `json:"occasion_choices,omitempty"`
	Alternatives       []choice.AltID           `json:"alternatives"`
	Constants          map[choice.AltID]float64 `json:"constants"`
	Covariate          string                   `json:"covariate"`
	Slopes             map[choice.AltID]float64 `json:"slopes"`
	RandomIntercept    float64                  `json:"random_intercept"`
	RandomAlternatives []choice.AltID           `json:"random_alternatives"`
	Seed               int64                    `json:"seed"`
}

// DefaultPanelConfig returns an unbalanced three-alternative panel with a
// strong random intercept on the first alternative
func DefaultPanelConfig() PanelGeneratorConfig {
	return PanelGeneratorConfig{
		Individuals:        200,
		OccasionChoices:    []int{1, 10},
		Alternatives:       []choice.AltID{1, 2, 3},
		Constants:          map[choice.AltID]float64{1: 0.3, 2: 0, 3: -0.2},
		Covariate:          "x",
		Slopes:             map[choice.AltID]float64{1: 0.8, 2: 0, 3: -0.5},
		RandomIntercept:    2.5,
		RandomAlternatives: []choice.AltID{1},
		Seed:               42,
	}
}

// PanelGenerator draws choice panels from known parameters
type PanelGenerator struct {
	config PanelGeneratorConfig
	rng    *rand.Rand
}

// NewPanelGenerator creates a generator; identical configs produce
// identical panels
func NewPanelGenerator(config PanelGeneratorConfig) *PanelGenerator {
	return &PanelGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate builds the panel, individuals in id order
func (g *PanelGenerator) Generate() (*choice.Panel, error) {
	cfg := g.config
	if cfg.Individuals <= 0 {
		return nil, fmt.Errorf("individuals must be positive, got %d", cfg.Individuals)
	}
	if len(cfg.Alternatives) < 2 {
		return nil, fmt.Errorf("need at least two alternatives, got %d", len(cfg.Alternatives))
	}

	random := make(map[choice.AltID]bool, len(cfg.RandomAlternatives))
	for _, alt := range cfg.RandomAlternatives {
		random[alt] = true
	}

	var observations []choice.Observation
	utilities := make([]float64, len(cfg.Alternatives))
	for i := 0; i < cfg.Individuals; i++ {
		id := fmt.Sprintf("shooter_%04d", i+1)
		omega := g.rng.NormFloat64()
		n := g.occasions()
		for t := 0; t < n; t++ {
			x := g.rng.NormFloat64()
			best := 0
			for j, alt := range cfg.Alternatives {
				u := cfg.Constants[alt] + cfg.Slopes[alt]*x + g.gumbel()
				if random[alt] {
					u += cfg.RandomIntercept * omega
				}
				utilities[j] = u
				if u > utilities[best] {
					best = j
				}
			}
			obs := choice.Observation{
				IndividualID: id,
				Occasion:     t,
				Alternatives: cfg.Alternatives,
				Covariates:   map[string]float64{},
				Chosen:       cfg.Alternatives[best],
			}
			if cfg.Covariate != "" {
				obs.Covariates[cfg.Covariate] = x
			}
			observations = append(observations, obs)
		}
	}
	return choice.NewPanel(observations), nil
}

func (g *PanelGenerator) occasions() int {
	if len(g.config.OccasionChoices) > 0 {
		return g.config.OccasionChoices[g.rng.Intn(len(g.config.OccasionChoices))]
	}
	lo, hi := g.config.MinOccasions, g.config.MaxOccasions
	if lo < 1 {
		lo = 1
	}
	if hi < lo {
		hi = lo
	}
	return lo + g.rng.Intn(hi-lo+1)
}

func (g *PanelGenerator) gumbel() float64 {
	u := g.rng.Float64()
	for u == 0 {
		u = g.rng.Float64()
	}
	return -math.Log(-math.Log(u))
}

// UniformChoicePanel returns n single-occasion individuals whose choices
// cycle through alts, so every alternative is chosen equally often when n
// is a multiple of len(alts)
func UniformChoicePanel(n int, alts []choice.AltID) *choice.Panel {
	observations := make([]choice.Observation, 0, n)
	for i := 0; i < n; i++ {
		observations = append(observations, choice.Observation{
			IndividualID: fmt.Sprintf("shooter_%04d", i+1),
			Alternatives: alts,
			Covariates:   map[string]float64{},
			Chosen:       alts[i%len(alts)],
		})
	}
	return choice.NewPanel(observations)
}

// Records flattens a panel into a header row and string rows with columns
// id, occasion, choice followed by the named covariates
func Records(panel *choice.Panel, covariates []string) ([]string, [][]string) {
	headers := append([]string{"id", "occasion", "choice"}, covariates...)
	var rows [][]string
	for _, obs := range panel.Observations() {
		row := []string{obs.IndividualID, strconv.Itoa(obs.Occasion), strconv.Itoa(int(obs.Chosen))}
		for _, name := range covariates {
			row = append(row, strconv.FormatFloat(obs.Covariates[name], 'g', -1, 64))
		}
		rows = append(rows, row)
	}
	return headers, rows
}
