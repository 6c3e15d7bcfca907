package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/cognitedata/ptz-stabilizer/integrations/ptz_stabilizer"
	"github.com/cognitedata/ptz-stabilizer/internal"
	"github.com/kardianos/service"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var Version string
var configPath string

var errEmptyConfig = errors.New("no cameras configured")

// waitBeforeExit is swapped in tests.
var waitBeforeExit = time.Sleep

// stabilizerApp holds everything started by the service program.
type stabilizerApp struct {
	config     *internal.StaticConfig
	logger     *log.Logger
	stabilizer *ptz_stabilizer.PtzStabilizer
	server     *internal.StatusServer
}

type program struct {
	app *stabilizerApp
}

func (p *program) Start(s service.Service) error {
	// Start should not block. Monitors run in their own goroutines.
	return p.app.start()
}

func (p *program) Stop(s service.Service) error {
	p.app.stop()
	return nil
}

// loadApp reads the configuration and prepares the logger. The returned app is not started.
func loadApp(path string) (*stabilizerApp, error) {
	logger := internal.NewLogger(internal.DefaultLogLevel, os.Stdout)
	config, err := internal.LoadConfig(path)
	if err != nil {
		internal.Criticalf(logger.WithField(internal.SourceField, internal.SystemSource), "Failed to load configuration: %v", err)
		return nil, err
	}
	if err := internal.ConfigureLogger(logger, config.LogDir, config.LogLevel); err != nil {
		logger.WithField(internal.SourceField, internal.SystemSource).Errorf("Failed to create log file, logging to stdout. Err: %v", err)
	}
	return &stabilizerApp{config: config, logger: logger}, nil
}

func (a *stabilizerApp) sysLog() *log.Entry {
	return a.logger.WithField(internal.SourceField, internal.SystemSource)
}

// checkCameras applies the empty configuration policy. A nil error with ok=false means the process
// should exit cleanly without starting.
func (a *stabilizerApp) checkCameras() (ok bool, err error) {
	if len(a.config.Cameras) > 0 {
		return true, nil
	}
	if a.config.EmptyConfigPolicy == internal.EmptyConfigWait {
		a.sysLog().Warnf("No cameras configured, waiting %s before exiting", a.config.EmptyConfigWait)
		waitBeforeExit(a.config.EmptyConfigWait)
		return false, nil
	}
	internal.Critical(a.sysLog(), "No cameras configured, check configuration")
	return false, errEmptyConfig
}

func (a *stabilizerApp) start() error {
	a.stabilizer = ptz_stabilizer.NewPtzStabilizer(a.logger)
	a.stabilizer.SetConfig(a.config)
	if a.config.StatusListen != "" {
		a.server = internal.NewStatusServer(a.config.StatusListen, a.stabilizer.StateTracker, a.stabilizer.Events, a.stabilizer.Metrics, a.logger)
		if err := a.server.Start(); err != nil {
			a.sysLog().Errorf("Status server can't be started. Err: %v", err)
			a.server = nil
		}
	}
	if err := a.stabilizer.Start(); err != nil {
		a.stopServer()
		return err
	}
	return nil
}

func (a *stabilizerApp) stop() {
	a.sysLog().Info("Exiting...")
	if a.stabilizer != nil {
		a.stabilizer.Stop()
	}
	a.stopServer()
}

func (a *stabilizerApp) stopServer() {
	if a.server != nil {
		a.server.Stop()
		a.server = nil
	}
}

func configureService(app *stabilizerApp, args []string) (service.Service, error) {
	svcConfig := service.Config{
		Name:        internal.LINUX_SERVICE,
		DisplayName: "ONVIF PTZ stabilizer",
		Description: "Sends a PTZ stop command to ONVIF cameras once they come to rest",
		Arguments:   args,
	}
	if runtime.GOOS == "linux" {
		svcConfig.UserName = internal.LINUX_USER
	}
	return service.New(&program{app: app}, &svcConfig)
}

func runStabilizer(cmd *cobra.Command, args []string) error {
	app, err := loadApp(configPath)
	if err != nil {
		return err
	}
	ok, err := app.checkCameras()
	if !ok {
		return err
	}
	appService, err := configureService(app, nil)
	if err != nil {
		return err
	}
	// Blocks until the service manager or a signal stops the program.
	return appService.Run()
}

func installService(cmd *cobra.Command, args []string) error {
	installedConfig := configPath
	if runtime.GOOS == "linux" {
		if err := internal.PrepareLinuxServiceEnv(configPath); err != nil {
			return errors.Wrap(err, "failed to prepare service environment, make sure you run installation as root")
		}
		installedConfig = internal.LINUX_CONFIG_FILE
	}
	appService, err := configureService(nil, []string{"run", "--config", installedConfig})
	if err != nil {
		return err
	}
	if err := appService.Install(); err != nil {
		return errors.Wrap(err, "failed to install service, make sure you run installation as system administrator")
	}
	if err := appService.Start(); err != nil {
		return errors.Wrap(err, "failed to run service")
	}
	fmt.Println("ptz-stabilizer service installed and started")
	return nil
}

func uninstallService(cmd *cobra.Command, args []string) error {
	appService, err := configureService(nil, nil)
	if err != nil {
		return err
	}
	appService.Stop()
	if err := appService.Uninstall(); err != nil {
		return errors.Wrap(err, "failed to uninstall service")
	}
	if runtime.GOOS == "linux" {
		return internal.RemoveLinuxServiceEnv()
	}
	return nil
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ptz-stabilizer",
		Short:         "Stops ONVIF PTZ cameras once their position stops changing",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runStabilizer,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", internal.DefaultConfigPath, "Path to the JSON or YAML options file")

	root.AddCommand(
		&cobra.Command{Use: "run", Short: "Run in the foreground (default)", RunE: runStabilizer},
		&cobra.Command{Use: "install", Short: "Install and start as an OS service", RunE: installService},
		&cobra.Command{Use: "uninstall", Short: "Stop and remove the OS service", RunE: uninstallService},
		&cobra.Command{Use: "update", Short: "Replace the installed binary with this one", RunE: func(cmd *cobra.Command, args []string) error {
			return internal.UpdateLinuxServiceBinary()
		}},
		&cobra.Command{Use: "version", Short: "Print version", Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		}},
	)
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
