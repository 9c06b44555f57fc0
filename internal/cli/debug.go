package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/danieljhkim/modapply/internal/config"
	"github.com/danieljhkim/modapply/internal/manifest"
)

// debugReport is what the debug command prints.
type debugReport struct {
	ConfigFile    string            `json:"config_file" yaml:"config_file"`
	Settings      *config.Settings  `json:"settings" yaml:"settings"`
	Paths         *config.Paths     `json:"paths" yaml:"paths"`
	Modules       []manifest.Source `json:"modules" yaml:"modules"`
	ManifestError string            `json:"manifest_error,omitempty" yaml:"manifest_error,omitempty"`
}

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Print the resolved settings, paths and modules",
	Long: `Print the settings modapply would run with, after merging defaults, the
config file, MODAPPLY_* environment variables and flags, together with the
resolved paths and the parsed modules file. Nothing is modified.`,
	Args: cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, s *session) error {
		report := debugReport{
			ConfigFile: s.configFile,
			Settings:   s.settings,
			Paths:      s.paths,
			Modules:    []manifest.Source{},
		}

		sources, err := manifest.ReadAll(s.paths.Manifest)
		if err != nil {
			report.ManifestError = err.Error()
		} else {
			report.Modules = sources
		}

		if jsonOutput {
			return s.print.JSON(report)
		}

		enc := yaml.NewEncoder(s.print.out)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	}),
}

func init() {
	addApplyFlags(debugCmd)
}
