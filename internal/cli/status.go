package cli

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the paths recorded by the last apply",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, s *session) error {
		eng := s.newEngine()

		result, err := eng.Status(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOutput {
			return s.print.JSON(result)
		}

		s.print.Section("Status")
		s.print.LabelValue("Target", result.TargetRoot)
		s.print.LabelValue("Log", result.LogPath)

		if !result.Applied {
			s.print.Info("")
			s.print.EmptyState("No modules applied.")
			return nil
		}

		s.print.Info("")
		if len(result.Entries) == 0 {
			s.print.EmptyState("The last apply wrote no paths.")
			return nil
		}

		var b strings.Builder
		table := tablewriter.NewWriter(&b)
		table.SetHeader([]string{"Path", "Tree", "Present"})
		table.SetBorder(false)
		table.SetCenterSeparator("")
		table.SetAutoWrapText(false)
		table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER})

		missing := 0
		for _, e := range result.Entries {
			present := "yes"
			if !e.Exists {
				present = "no"
				missing++
			}
			table.Append([]string{e.Path, e.Root, present})
		}
		table.SetFooter([]string{
			countOf(len(result.Entries), "path", "paths"),
			"",
			fmt.Sprintf("%d missing", missing),
		})
		table.Render()

		s.print.Info(strings.TrimRight(b.String(), "\n"))
		return nil
	}),
}
