// Package config loads admission rule tables from YAML files.
//
// A rule table maps rule names to budgets, typically mirroring the rate
// limits a broker publishes for its API endpoint groups:
//
//	limiter_name: broker
//	sweep_schedule: "@every 5m"
//	rules:
//	  - name: market_data
//	    max_requests: 10
//	    window_ms: 1000
//	  - name: order_placement
//	    max_requests: 5
//	    window_ms: 1000
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mkrell/admit/pkg/admission"
	aderrors "github.com/mkrell/admit/pkg/common/errors"
)

type Rule struct {
	Name        string `yaml:"name"`
	MaxRequests int    `yaml:"max_requests"`
	WindowMS    int    `yaml:"window_ms"`
}

type Observability struct {
	LogLevel       string `yaml:"log_level"`       // "debug","info","warn","error"
	MetricsEnabled bool   `yaml:"metrics_enabled"` // export Prometheus counters
}

type Root struct {
	LimiterName   string        `yaml:"limiter_name"`
	SweepSchedule string        `yaml:"sweep_schedule"`
	Observability Observability `yaml:"observability"`
	Rules         []Rule        `yaml:"rules"`
}

func (r Rule) Window() time.Duration {
	if r.WindowMS <= 0 {
		return time.Second
	}
	return time.Duration(r.WindowMS) * time.Millisecond
}

// AdmissionRules converts the loaded table into the limiter's rule slice.
func (c *Root) AdmissionRules() []admission.Rule {
	rules := make([]admission.Rule, 0, len(c.Rules))
	for _, r := range c.Rules {
		rules = append(rules, admission.Rule{
			Name:        r.Name,
			MaxRequests: r.MaxRequests,
			Window:      r.Window(),
		})
	}
	return rules
}

func Load(path string) (*Root, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes a rule table from raw YAML and applies defaults.
func Parse(b []byte) (*Root, error) {
	var cfg Root
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, aderrors.NewValidationError("config", "yaml", "", err.Error()).
			WithHint("check the rule table syntax")
	}
	if cfg.LimiterName == "" {
		cfg.LimiterName = "default"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	for i := range cfg.Rules {
		if cfg.Rules[i].WindowMS <= 0 {
			cfg.Rules[i].WindowMS = 1000
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Root) validate() error {
	if len(c.Rules) == 0 {
		return aderrors.NewValidationError("config", "rules", "[]", "at least one rule is required").
			WithHint("define rules matching the broker's documented limits")
	}
	seen := make(map[string]struct{}, len(c.Rules))
	for _, r := range c.Rules {
		if r.Name == "" {
			return aderrors.NewValidationError("config", "rules.name", "", "rule name cannot be empty")
		}
		if _, dup := seen[r.Name]; dup {
			return aderrors.NewValidationError("config", "rules.name", r.Name, "duplicate rule name")
		}
		seen[r.Name] = struct{}{}
		if r.MaxRequests <= 0 {
			return aderrors.NewValidationError("config", "rules.max_requests", r.Name, "must be positive")
		}
	}
	return nil
}
