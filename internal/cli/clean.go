package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove everything the last apply added",
	Long: `Reverse the last apply using its log.

Tracked files in the target are restored with git restore, then every logged
path is removed and the log is deleted. Patches to untracked files and helper
script side effects are not undone.`,
	Args: cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, s *session) error {
		eng := s.newEngine()

		result, err := eng.Clean(cmd.Context())
		if err != nil {
			if result != nil && !jsonOutput {
				s.print.Warning(fmt.Sprintf("Removed %s before failing; the log was kept",
					countOf(len(result.Removed), "path", "paths")))
			}
			return err
		}

		if jsonOutput {
			return s.print.JSON(result)
		}

		for _, path := range result.Missing {
			s.print.Warning(fmt.Sprintf("%s does not exist, skipping", path))
		}
		for _, path := range result.Rejected {
			s.print.Warning(fmt.Sprintf("%s is outside the target, skipping", path))
		}
		if result.RestoreError != "" {
			s.print.Warning(fmt.Sprintf("git restore failed: %s", result.RestoreError))
		}

		s.print.Success(fmt.Sprintf("Removed %s", countOf(len(result.Removed), "path", "paths")))
		return nil
	}),
}
