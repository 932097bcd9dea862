// Package cli implements the multihack command-line interface.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/bolasblack/multihack/internal/config"
	"github.com/bolasblack/multihack/internal/util"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize multihack configuration in current directory",
	Long:  `Initialize multihack by creating a .mhk.toml configuration file in the current directory.`,
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := getCwd()
	if err != nil {
		return err
	}

	// Interactive template selection
	var selectedTemplate string
	err = huh.NewSelect[string]().
		Title("Select a relay").
		Options(
			huh.NewOption("Public - the shared relay, with project size limits", string(config.TemplatePublic)),
			huh.NewOption("Private - a relay you run with 'mhk relay'", string(config.TemplatePrivate)),
		).
		Value(&selectedTemplate).
		Run()
	if err != nil {
		return fmt.Errorf("template selection cancelled: %w", err)
	}

	configPath, err := writeInitConfig(util.NewOsEnv(), cwd, config.Template(selectedTemplate))
	if err != nil {
		return err
	}

	util.ProgressDone(os.Stdout, "Created %s\n", configPath)
	fmt.Println("Edit this file to customize the relay and ignored files.")
	return nil
}

// writeInitConfig generates the template config into dir and returns its path.
func writeInitConfig(env *util.Env, dir string, template config.Template) (string, error) {
	configPath := filepath.Join(dir, config.FileName)

	if _, err := env.Fs.Stat(configPath); err == nil {
		return configPath, fmt.Errorf("configuration file already exists: %s", configPath)
	}

	content, err := config.GenerateConfig(template)
	if err != nil {
		return configPath, fmt.Errorf("failed to generate configuration: %w", err)
	}

	if err := afero.WriteFile(env.Fs, configPath, []byte(content), 0644); err != nil {
		return configPath, fmt.Errorf("failed to write configuration: %w", err)
	}
	return configPath, nil
}
