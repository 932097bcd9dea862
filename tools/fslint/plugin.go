package fslint

import (
	"github.com/golangci/plugin-module-register/register"
	"golang.org/x/tools/go/analysis"
)

func init() {
	register.Plugin("fslint", New)
}

// New creates the fslint plugin for golangci-lint.
func New(settings any) (register.LinterPlugin, error) {
	s, err := register.DecodeSettings[PluginSettings](settings)
	if err != nil {
		return nil, err
	}
	return &fslintPlugin{settings: s}, nil
}

// PluginSettings are read from the linters-settings.custom.fslint block.
// Config points at a TOML file; without one DefaultConfig is used. The
// remaining fields adjust whichever config was loaded.
type PluginSettings struct {
	Config          string   `json:"config"`
	AllowedPackages []string `json:"allowed-packages"`
	IncludeTests    bool     `json:"include-tests"`
}

func (s PluginSettings) load() (*Config, error) {
	cfg, err := loadConfig(s.Config)
	if err != nil {
		return nil, err
	}
	cfg.AllowedPackages = append(cfg.AllowedPackages, s.AllowedPackages...)
	if s.IncludeTests {
		cfg.SkipTests = false
	}
	return cfg, nil
}

type fslintPlugin struct {
	settings PluginSettings
}

func (p *fslintPlugin) BuildAnalyzers() ([]*analysis.Analyzer, error) {
	if _, err := p.settings.load(); err != nil {
		return nil, err
	}
	return []*analysis.Analyzer{NewAnalyzer(p.settings.load)}, nil
}

func (p *fslintPlugin) GetLoadMode() string {
	return register.LoadModeSyntax
}
