package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models teamline.yml.
type Config struct {
	Org struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"org"`
	Leave struct {
		// Allowances holds annual day allowances per leave type. Keys must
		// cover paid, sick and casual.
		Allowances map[string]int `yaml:"allowances"`
	} `yaml:"leave"`
	Attendance struct {
		WorkModes []string `yaml:"work_modes"`
	} `yaml:"attendance"`
	Notifications struct {
		Buffer int `yaml:"buffer"`
	} `yaml:"notifications"`
}

var requiredLeaveTypes = []string{"paid", "sick", "casual"}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create with tl init or import with tl org config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Org.ID == "" {
		return fmt.Errorf("config.org.id is required")
	}
	if c.Leave.Allowances == nil {
		return fmt.Errorf("config.leave.allowances is required")
	}
	for _, lt := range requiredLeaveTypes {
		days, ok := c.Leave.Allowances[lt]
		if !ok {
			return fmt.Errorf("config.leave.allowances must include %s", lt)
		}
		if days < 0 {
			return fmt.Errorf("leave allowance for %s must not be negative", lt)
		}
	}
	for lt := range c.Leave.Allowances {
		known := false
		for _, req := range requiredLeaveTypes {
			if lt == req {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("unknown leave type %s in config.leave.allowances", lt)
		}
	}
	if len(c.Attendance.WorkModes) == 0 {
		return fmt.Errorf("config.attendance.work_modes is required")
	}
	for _, mode := range c.Attendance.WorkModes {
		if mode != "office" && mode != "wfh" {
			return fmt.Errorf("unknown work mode %s in config.attendance.work_modes", mode)
		}
	}
	if c.Notifications.Buffer < 0 {
		return fmt.Errorf("config.notifications.buffer must not be negative")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "teamline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(orgID string) string {
	return fmt.Sprintf(defaultTemplate, orgID)
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

// Default returns the default Config struct for an org.
func Default(orgID string) *Config {
	var cfg Config
	cfg.Org.ID = orgID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, orgID))).Decode(&cfg)
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

const defaultTemplate = `org:
  id: %s
  name: ""

leave:
  allowances:
    paid: 18
    sick: 10
    casual: 6

attendance:
  work_modes: [office, wfh]

notifications:
  buffer: 64
`
