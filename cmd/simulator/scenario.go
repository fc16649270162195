package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Phase is one stretch of simulated activity
type Phase struct {
	// Action is one of: move, scroll, click, pageview, idle
	Action string `yaml:"action"`
	// Duration of the phase
	Duration time.Duration `yaml:"duration"`
	// Rate is actions per second (ignored for idle)
	Rate int `yaml:"rate"`
	// URL for pageview actions
	URL string `yaml:"url"`
}

// Scenario describes one simulated visit
type Scenario struct {
	ProjectID   string  `yaml:"project_id"`
	Endpoint    string  `yaml:"endpoint"`
	Site        string  `yaml:"site"`
	Hostname    string  `yaml:"hostname"`
	Environment string  `yaml:"environment"`
	PageURL     string  `yaml:"page_url"`
	Debug       bool    `yaml:"debug"`
	Phases      []Phase `yaml:"phases"`
}

var validActions = map[string]bool{
	"move":     true,
	"scroll":   true,
	"click":    true,
	"pageview": true,
	"idle":     true,
}

// LoadScenario reads and validates a YAML scenario file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("invalid scenario file: %w", err)
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// DefaultScenario is used when no scenario file is given: a short visit
// with movement, scrolling, a click and a pause
func DefaultScenario() *Scenario {
	return &Scenario{
		ProjectID:   "demo",
		Endpoint:    "http://127.0.0.1:8477",
		Site:        "demo-site",
		Hostname:    "demo.example",
		Environment: "development",
		PageURL:     "https://demo.example/",
		Phases: []Phase{
			{Action: "pageview", Duration: time.Second, Rate: 1, URL: "https://demo.example/"},
			{Action: "move", Duration: 5 * time.Second, Rate: 60},
			{Action: "scroll", Duration: 3 * time.Second, Rate: 20},
			{Action: "idle", Duration: 2 * time.Second},
			{Action: "click", Duration: time.Second, Rate: 2},
			{Action: "move", Duration: 4 * time.Second, Rate: 60},
		},
	}
}

func (sc *Scenario) validate() error {
	if sc.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if sc.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if len(sc.Phases) == 0 {
		return fmt.Errorf("at least one phase is required")
	}
	for i, p := range sc.Phases {
		if !validActions[p.Action] {
			return fmt.Errorf("phase %d: unknown action %q", i, p.Action)
		}
		if p.Duration <= 0 {
			return fmt.Errorf("phase %d: duration must be positive", i)
		}
		if p.Action != "idle" && p.Rate <= 0 {
			return fmt.Errorf("phase %d: rate must be positive", i)
		}
	}
	return nil
}
