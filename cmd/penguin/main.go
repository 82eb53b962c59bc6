package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zhivem/penguin/internal/elevate"
	"github.com/zhivem/penguin/internal/instance"
	"github.com/zhivem/penguin/internal/log"
	"github.com/zhivem/penguin/internal/model"
)

var (
	userConfigPath string       // /default/config/path/penguin on given OS
	configPath     string       // actual config file used
	config         model.Config // resolved
	rawConfig      model.Config // as stored in configPath
	rawConfigMx    sync.Mutex

	lock      = instance.New("", instance.Name)
	logOutput io.WriteCloser

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		d = "."
	}
	userConfigPath = filepath.Join(d, "penguin")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is penguin.yaml in "+userConfigPath+" or in current directory")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initPenguin
	rootCmd.RunE = doRoot

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)

	err := rootCmd.Execute()
	// the lock outlives everything else
	if rerr := lock.Release(); rerr != nil {
		slog.Warn("releasing instance lock", "err", rerr)
	}
	if err != nil {
		slog.Error("penguin failed", "err", err)
		if isTUI(rootCmd) && logOutput != nil {
			fmt.Fprintln(os.Stderr, "penguin failed:", err)
		}
	}
	if logOutput != nil {
		_ = logOutput.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "penguin",
	Short:        "Launcher and supervisor of DPI bypass profiles",
	SilenceUsage: true,
	Args:         cobra.NoArgs,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a penguin",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("penguin: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config: %s\n", configPath)
		}
		fmt.Printf("penguin: %s\n", info.Main.Version)
		fmt.Printf("go:      %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:  %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:    %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:   %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

// isTUI reports whether the root command would run the interactive UI.
func isTUI(cmd *cobra.Command) bool {
	return cmd == rootCmd && isatty.IsTerminal(os.Stdout.Fd()) && isatty.IsTerminal(os.Stdin.Fd())
}

func initPenguin(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv(model.ConfigEnv); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "penguin.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	// store default configuration
	if configPath == "" {
		configPath = filepath.Join(userConfigPath, "penguin.yaml")
		config = model.DefaultConfig(userConfigPath)
		if err := saveConfig(configPath, config); err != nil {
			return err
		}
	} else {
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		config, err = model.LoadConfig(f)
		if err != nil {
			for _, issue := range model.Issues(err) {
				slog.Error("invalid config", issue.Attr("issue"))
			}
			return fmt.Errorf("parsing config %s: %w", configPath, err)
		}
	}
	rawConfig = config
	config = config.Resolve(filepath.Dir(configPath))

	// --verbose has a precedence over config file
	if flagVerbose {
		verbose := true
		config.Verbose = &verbose
	}

	// initialize logging, the terminal UI owns the screen
	dest := model.LogStderr
	if config.Log != nil {
		dest = *config.Log
	} else if isTUI(cmd) {
		dest = filepath.Join(userConfigPath, "penguin.log")
	}
	out, err := log.Output(dest)
	if err != nil {
		return err
	}
	logOutput = out
	slog.SetDefault(log.New(out, config.IsVerbose()))

	slog.Debug("penguin run", "configPath", configPath)
	slog.Debug("penguin run", "config", config)
	return nil
}

// guard obtains administrative rights and the single instance lock. A
// relaunch for elevation does not return.
func guard(cmd *cobra.Command) error {
	ctx := cmd.Context()
	p := elevate.New(config.Elevation)
	if !p.IsElevated() {
		// the elevated process finds the same settings without a --config flag
		if err := os.Setenv(model.ConfigEnv, configPath); err != nil {
			return err
		}
	}
	if err := elevate.Ensure(ctx, p, relaunchArgs(os.Args)); err != nil {
		return err
	}
	if err := lock.Acquire(); err != nil {
		if errors.Is(err, model.ErrAlreadyRunning) {
			slog.ErrorContext(ctx, "another instance is running", "pid", lock.HolderPID())
		}
		return err
	}
	return nil
}

// relaunchArgs returns the command line without the program name.
func relaunchArgs(argv []string) []string {
	if len(argv) < 2 {
		return nil
	}
	return slices.Clone(argv[1:])
}

func saveConfig(path string, cfg model.Config) error {
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("storing configuration: %w", err)
	}
	return enc.Close()
}

// saveLastProfile remembers the started profile for the next launch.
func saveLastProfile(name string) {
	rawConfigMx.Lock()
	defer rawConfigMx.Unlock()
	if rawConfig.LastProfile == name {
		return
	}
	rawConfig.LastProfile = name
	if err := saveConfig(configPath, rawConfig); err != nil {
		slog.Warn("saving last profile", "name", name, "err", err)
	}
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
