package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models taskboard.yml.
type Config struct {
	Project struct {
		ID    string `yaml:"id"`
		Title string `yaml:"title"`
	} `yaml:"project"`
	Board struct {
		Statuses []string `yaml:"statuses"`
	} `yaml:"board"`
	Badges struct {
		Catalog map[string]struct {
			Description string `yaml:"description"`
		} `yaml:"catalog"`
	} `yaml:"badges"`
	Automation struct {
		SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
	} `yaml:"automation"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with tb project config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if len(c.Board.Statuses) == 0 {
		return fmt.Errorf("config.board.statuses is required")
	}
	seen := map[string]bool{}
	for _, s := range c.Board.Statuses {
		if s == "" {
			return fmt.Errorf("config.board.statuses contains empty status")
		}
		if seen[s] {
			return fmt.Errorf("config.board.statuses contains duplicate status %q", s)
		}
		seen[s] = true
	}
	for name := range c.Badges.Catalog {
		if name == "" {
			return fmt.Errorf("config.badges.catalog contains empty badge name")
		}
	}
	if c.Automation.SweepIntervalMinutes < 0 {
		return fmt.Errorf("config.automation.sweep_interval_minutes must not be negative")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// HasStatus reports whether a status belongs to the board.
func (c *Config) HasStatus(status string) bool {
	for _, s := range c.Board.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// HasBadge reports whether the badge is in the catalog. An empty catalog
// accepts any badge name.
func (c *Config) HasBadge(badge string) bool {
	if len(c.Badges.Catalog) == 0 {
		return true
	}
	_, ok := c.Badges.Catalog[badge]
	return ok
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskboard.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	cfg.Project.ID = projectID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, projectID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `project:
  id: %s
  title: ""

board:
  statuses:
    - "To Do"
    - "In Progress"
    - "Done"

badges:
  catalog:
    Task Master:
      description: "Completed a task through an automation rule"
    Early Completer:
      description: "Finished work ahead of its due date"
    Team Player:
      description: "Picked up a task assigned through an automation"
    Workflow Specialist:
      description: "Authored automations that fired successfully"

automation:
  sweep_interval_minutes: 60
`
