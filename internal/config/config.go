package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"teamboard/internal/domain"
)

// Config carries every runtime setting the process needs. It is built
// once at startup and passed explicitly into the components that need
// it; nothing reads the environment after construction.
type Config struct {
	Workspace string
	Addr      string
	BasePath  string

	JWTSecret string
	TokenTTL  time.Duration

	LogLevel string
	LogFile  string
}

// FromViper materializes a Config from bound flags and TEAMBOARD_*
// environment variables.
func FromViper() Config {
	ttl := viper.GetDuration("token-ttl")
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return Config{
		Workspace: viper.GetString("workspace"),
		Addr:      viper.GetString("addr"),
		BasePath:  viper.GetString("base-path"),
		JWTSecret: viper.GetString("jwt-secret"),
		TokenTTL:  ttl,
		LogLevel:  viper.GetString("log-level"),
		LogFile:   viper.GetString("log-file"),
	}
}

// Validate ensures the settings a serving process cannot run without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("jwt secret is required; set --jwt-secret or TEAMBOARD_JWT_SECRET")
	}
	if c.Addr == "" {
		return fmt.Errorf("listen address is required")
	}
	return nil
}

// SeedFile models the YAML file consumed by `teamboard seed-templates`.
type SeedFile struct {
	Templates []SeedTemplate `yaml:"templates"`
}

type SeedTemplate struct {
	Name  string `yaml:"name"`
	Lists []struct {
		Name  string `yaml:"name"`
		Tasks []struct {
			Name        string `yaml:"name"`
			Description string `yaml:"description"`
		} `yaml:"tasks"`
	} `yaml:"lists"`
}

// LoadSeedFile reads and validates a template seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sf SeedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("invalid seed yaml: %w", err)
	}
	if len(sf.Templates) == 0 {
		return nil, fmt.Errorf("seed file %s contains no templates", path)
	}
	for _, t := range sf.Templates {
		if t.Name == "" {
			return nil, fmt.Errorf("seed template with empty name")
		}
	}
	return &sf, nil
}

// Domain converts a seed template into the stored template shape.
func (t SeedTemplate) Domain() domain.TaskTemplate {
	tpl := domain.TaskTemplate{Name: t.Name}
	for _, l := range t.Lists {
		tl := domain.TemplateList{Name: l.Name, Tasks: []domain.TemplateTask{}}
		for _, task := range l.Tasks {
			tl.Tasks = append(tl.Tasks, domain.TemplateTask{Name: task.Name, Description: task.Description})
		}
		tpl.Lists = append(tpl.Lists, tl)
	}
	return tpl
}
