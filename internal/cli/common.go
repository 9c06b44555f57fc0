package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/modapply/internal/applylog"
	"github.com/danieljhkim/modapply/internal/clock"
	"github.com/danieljhkim/modapply/internal/config"
	"github.com/danieljhkim/modapply/internal/engine"
	"github.com/danieljhkim/modapply/internal/fsops"
	"github.com/danieljhkim/modapply/internal/gitx"
	"github.com/danieljhkim/modapply/internal/hook"
	"github.com/danieljhkim/modapply/internal/logging"
)

// newSourceControl is replaced in tests.
var newSourceControl = func(logger *slog.Logger) gitx.SourceControl {
	return gitx.NewRealGit(logger)
}

// session is everything a command needs, resolved once per invocation.
type session struct {
	settings   *config.Settings
	paths      *config.Paths
	configFile string
	logger     *slog.Logger
	logCloser  io.Closer
	print      *printer
}

// flagBindings maps config keys to the flags that override them. Flags a
// command does not define are skipped.
var flagBindings = []struct {
	key  string
	flag string
}{
	{config.KeyTargetDir, "target-dir"},
	{config.KeyLogVerbose, "verbose"},
	{config.KeyManifest, "modules-file"},
	{config.KeyForce, "force"},
	{config.KeyStrict, "strict"},
}

// loadSession resolves settings from flags, env and the config file, then
// builds the logger.
func loadSession(cmd *cobra.Command) (*session, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	v := config.NewViper()
	for _, b := range flagBindings {
		flag := cmd.Flags().Lookup(b.flag)
		if flag == nil {
			continue
		}
		if err := config.BindFlag(v, b.key, flag); err != nil {
			return nil, err
		}
	}

	cfgFile, required := configFile, cmd.Flags().Changed("config")
	if !required {
		cfgFile = config.DefaultConfigFile(v.GetString(config.KeyTargetDir), cwd)
	}

	settings, err := config.Load(v, cfgFile, required)
	if err != nil {
		return nil, err
	}

	paths, err := config.ResolvePaths(settings, cwd)
	if err != nil {
		return nil, err
	}

	logger, closer := logging.New(logging.Options{
		Console:    cmd.ErrOrStderr(),
		Level:      logging.ParseLevel(settings.Log.Level, slog.LevelInfo),
		Verbose:    settings.Log.Verbose,
		Filename:   settings.Log.Filename,
		MaxSize:    settings.Log.MaxSize,
		MaxBackups: settings.Log.MaxBackups,
		MaxAge:     settings.Log.MaxAge,
		Compress:   settings.Log.Compress,
	})

	return &session{
		settings:   settings,
		paths:      paths,
		configFile: cfgFile,
		logger:     logger,
		logCloser:  closer,
		print:      &printer{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()},
	}, nil
}

// newEngine creates an engine with real implementations of all dependencies.
func (s *session) newEngine() *engine.Engine {
	fs := fsops.NewRealFS()

	var runners []hook.Runner
	if s.settings.Hooks.Enabled {
		runners = append(runners,
			hook.NewLuaRunner(s.logger),
			hook.NewShellRunner(s.settings.Hooks.ShellTimeout, s.logger),
		)
	}

	return engine.New(
		newSourceControl(s.logger),
		fs,
		hook.NewDispatcher(s.logger, runners...),
		applylog.NewFileStore(fs, s.paths.AppliedLog),
		clock.RealClock{},
		*s.paths,
		s.logger,
	)
}

func (s *session) close() {
	if s.logCloser != nil {
		_ = s.logCloser.Close()
	}
}
