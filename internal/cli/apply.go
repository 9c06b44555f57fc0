package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/modapply/internal/engine"
	"github.com/danieljhkim/modapply/internal/fsops"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply the modules listed in the modules file",
	Long: `Clone every repository listed in the modules file and apply it to the target.

For each module, modules/ and thirdparty/ are merged into the target, every
patches/*.patch is applied with git apply, and helper_script.lua or
helper_script.sh is run. The paths written are recorded for 'modapply clean'.

Existing target entries are never overwritten unless --force is given. Patch
and hook failures are reported but do not fail the run unless --strict is set.`,
	Args: cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, s *session) error {
		eng := s.newEngine()

		result, err := eng.Apply(cmd.Context(), &engine.ApplyRequest{
			Force:  s.settings.Force,
			Strict: s.settings.Strict,
		})

		var conflict *fsops.ConflictError
		if errors.As(err, &conflict) && !jsonOutput {
			s.print.Section("Conflicts Detected")
			for _, path := range conflict.Paths {
				s.print.Error(fmt.Sprintf("%s already exists", path))
			}
			s.print.Info("")
			s.print.Warning("Use --force to overwrite existing entries.")
			return err
		}
		if err != nil && !errors.Is(err, engine.ErrBestEffort) {
			return err
		}

		if jsonOutput {
			if encErr := s.print.JSON(result); encErr != nil {
				return encErr
			}
			return err
		}

		printApplyResult(s.print, result)
		return err
	}),
}

func printApplyResult(p *printer, result *engine.ApplyResult) {
	if len(result.Modules) > 0 {
		p.Section("Modules")
		for _, m := range result.Modules {
			p.Subsection(m.Name)
			p.List(append(append([]string{}, m.Modules...), m.ThirdParty...), 2)
		}
	}

	if len(result.PatchFailures) > 0 || len(result.HookFailures) > 0 {
		p.Section("Failures")
		for _, f := range result.PatchFailures {
			p.Warning(fmt.Sprintf("patch %s (%s): %s", f.Item, f.Module, f.Error))
		}
		for _, f := range result.HookFailures {
			p.Warning(fmt.Sprintf("hook %s (%s): %s", f.Item, f.Module, f.Error))
		}
		p.Info("")
	}

	p.Success(fmt.Sprintf("Applied %s from %s",
		countOf(len(result.Applied), "path", "paths"),
		countOf(len(result.Modules), "module", "modules")))
	p.LabelValue("Log", result.LogPath)
	p.LabelValue("Duration", result.Duration.Round(time.Millisecond).String())
}

// addApplyFlags registers the flags that shape an apply run. Their values
// are read back through the config layer.
func addApplyFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("modules-file", "m", "", "Modules file (default: <target>/modules_file.txt)")
	cmd.Flags().BoolP("force", "f", false, "Overwrite existing entries in the target")
	cmd.Flags().Bool("strict", false, "Exit non-zero when a patch or hook fails")
}

func init() {
	addApplyFlags(applyCmd)
}
