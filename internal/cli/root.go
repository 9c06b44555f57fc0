package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	jsonOutput bool
	targetDir  string
	configFile string
	verbose    bool

	// Colors for help output sections
	groupTitleColor   = color.New(color.FgCyan, color.Bold)
	sectionTitleColor = color.New(color.FgBlue, color.Bold)
)

// rootCmd is the root command for modapply.
var rootCmd = &cobra.Command{
	Use:     "modapply",
	Version: "dev",
	Short:   "Apply external module repositories onto a source tree",
	Long: `modapply applies the module repositories listed in a modules file onto a
target source tree.

Each repository is cloned into a temporary workspace; its modules/ and
thirdparty/ trees are merged into the target, its patches are applied and its
helper script is run. Every path written is logged so 'modapply clean' can
reverse the run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func SetVersion(v string) {
	if v == "" {
		return
	}
	rootCmd.Version = v
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

// customHelpFunc renders help with commands listed under their colored
// group titles.
func customHelpFunc(cmd *cobra.Command, args []string) {
	var help strings.Builder

	if cmd.Long != "" {
		help.WriteString(cmd.Long + "\n\n")
	} else if cmd.Short != "" {
		help.WriteString(cmd.Short + "\n\n")
	}

	fmt.Fprintf(&help, "%s\n  %s\n\n", sectionTitleColor.Sprint("Usage:"), cmd.UseLine())

	listed := make(map[string]bool)
	writeGroup := func(title string, match func(*cobra.Command) bool) {
		var lines []string
		for _, c := range cmd.Commands() {
			if c.IsAvailableCommand() && match(c) {
				lines = append(lines, fmt.Sprintf("  %-11s %s", c.Name(), c.Short))
				listed[c.Name()] = true
			}
		}
		if len(lines) == 0 {
			return
		}
		fmt.Fprintf(&help, "%s\n%s\n\n", groupTitleColor.Sprint(title), strings.Join(lines, "\n"))
	}

	for _, g := range cmd.Groups() {
		writeGroup(g.Title, func(c *cobra.Command) bool { return c.GroupID == g.ID })
	}
	writeGroup("Additional Commands:", func(c *cobra.Command) bool { return !listed[c.Name()] })

	if flags := cmd.LocalFlags().FlagUsages() + cmd.InheritedFlags().FlagUsages(); flags != "" {
		fmt.Fprintf(&help, "%s\n%s\n", sectionTitleColor.Sprint("Flags:"), flags)
	}

	if cmd.HasAvailableSubCommands() {
		fmt.Fprintf(&help, "Use \"%s [command] --help\" for more information about a command.\n", cmd.CommandPath())
	}

	_, _ = fmt.Fprint(cmd.OutOrStdout(), help.String())
}

// withSession wraps a command body so it runs with settings and a logger
// resolved for this invocation.
func withSession(run func(cmd *cobra.Command, s *session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := loadSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()
		return run(cmd, s)
	}
}

func init() {
	rootCmd.SetHelpFunc(customHelpFunc)

	// Global flags
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVarP(&targetDir, "target-dir", "t", "", "Target source tree (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: <target>/.modapply.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddGroup(&cobra.Group{
		ID:    "module-lifecycle",
		Title: "Module Lifecycle:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "inspection",
		Title: "Inspection:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "cli-tooling",
		Title: "CLI & Tooling:",
	})

	// CLI & Tooling commands
	versionCmd := &cobra.Command{
		Use:     "version",
		Short:   "Print the modapply CLI version",
		Args:    cobra.NoArgs,
		GroupID: "cli-tooling",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), rootCmd.Version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	rootCmd.SetHelpCommandGroupID("cli-tooling")
	rootCmd.SetCompletionCommandGroupID("cli-tooling")

	// Module Lifecycle commands
	applyCmd.GroupID = "module-lifecycle"
	cleanCmd.GroupID = "module-lifecycle"
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(cleanCmd)

	// Inspection commands
	statusCmd.GroupID = "inspection"
	debugCmd.GroupID = "inspection"
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(debugCmd)
}

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}
