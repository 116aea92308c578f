package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Profile is a reusable extraction profile: the labels to look for and the
// fiscal years to prefer, kept in a YAML file next to a batch of reports.
type Profile struct {
	Keywords        []string `yaml:"keywords"`
	ContextKeywords []string `yaml:"context_keywords"`
	Years           []int    `yaml:"years"`
	YearScores      []int    `yaml:"year_scores"`
	Currency        string   `yaml:"currency"`
	Question        string   `yaml:"question"`
}

// LoadProfile reads a profile file. The YAML has a top-level "profile" key.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read profile %s", path)
	}

	var wrapper struct {
		Profile Profile `yaml:"profile"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "config: parse profile")
	}

	return &wrapper.Profile, nil
}

// Apply overrides the settings the profile sets.
func (c *Config) Apply(p *Profile) {
	if p == nil {
		return
	}
	if p.Question != "" {
		c.Vision.Question = p.Question
	}
	c.Extract.apply(p)
}

func (c *ExtractConfig) apply(p *Profile) {
	if len(p.Keywords) > 0 {
		c.Keywords = p.Keywords
	}
	if len(p.ContextKeywords) > 0 {
		c.ContextKeywords = p.ContextKeywords
	}
	if len(p.Years) > 0 {
		c.Years = p.Years
	}
	if len(p.YearScores) > 0 {
		c.YearScores = p.YearScores
	}
	if p.Currency != "" {
		c.Currency = p.Currency
	}
}
