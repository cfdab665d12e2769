// finix is a small init daemon built around a declarative, reload-
// able configuration: a main file, drop-in fragment directories and
// template fragments, replayed from scratch on every reload.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/finixos/finix/pkg/cgroup"
	"github.com/finixos/finix/pkg/config"
	"github.com/finixos/finix/pkg/control"
	"github.com/finixos/finix/pkg/eventloop"
	"github.com/finixos/finix/pkg/logging"
	"github.com/finixos/finix/pkg/periodic"
	"github.com/finixos/finix/pkg/process"
	"github.com/finixos/finix/pkg/service"
	"github.com/finixos/finix/pkg/shutdown"
)

const (
	version = "0.1.0"

	defaultSocket      = "/run/finix.socket"
	bootCommandTimeout = 30 * time.Second
)

func main() {
	var (
		confPath    string
		rcsdPath    string
		systemPath  string
		rescuePath  string
		socketPath  string
		statusPath  string
		rescueMode  bool
		singleMode  bool
		autoReload  bool
		logLevel    string
		showVersion bool
	)

	flag.StringVar(&confPath, "config", config.DefaultConfPath, "main configuration file")
	flag.StringVar(&rcsdPath, "rcsd", config.DefaultRCSDPath, "drop-in fragment directory")
	flag.StringVar(&systemPath, "defaults", config.DefaultSystemPath, "read-only system defaults directory")
	flag.StringVar(&rescuePath, "rescue-conf", config.DefaultRescuePath, "rescue mode configuration file")
	flag.StringVar(&socketPath, "socket", defaultSocket, "control socket path")
	flag.StringVar(&statusPath, "status-file", config.DefaultStatusPath, "status file path")
	flag.BoolVar(&rescueMode, "rescue", false, "boot into rescue mode")
	flag.BoolVar(&singleMode, "single", false, "boot into single-user mode (runlevel 1)")
	flag.BoolVar(&autoReload, "auto-reload", false, "reload automatically when configuration changes")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, notice, warn, error)")
	flag.BoolVar(&showVersion, "version", false, "show version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("finix version %s\n", version)
		os.Exit(0)
	}

	isPID1 := os.Getpid() == 1

	// The kernel command line and our own positional arguments can
	// both request rescue or single-user mode.
	opts := parseBootOptions(readKernelCmdline(), flag.Args())
	rescueMode = rescueMode || opts.rescue
	singleMode = singleMode || opts.single

	level := parseLogLevel(logLevel)
	if opts.debug {
		level = logging.LevelDebug
	}
	log := logging.New(level)

	if isPID1 {
		log.Notice("finix starting as PID 1")
		if err := shutdown.InitPID1(log); err != nil {
			log.Error("PID 1 initialization warning: %v", err)
		}
	} else {
		log.Notice("finix starting (PID %d)", os.Getpid())
	}

	engine := config.NewEngine(log)
	engine.ConfPath = confPath
	engine.RCSDPath = rcsdPath
	engine.SystemPath = systemPath
	engine.RescuePath = rescuePath
	engine.Rescue = rescueMode
	engine.Single = singleMode

	registry := service.NewRegistry(log)
	engine.Registry = registry

	cgroups := cgroup.NewManager(log)
	engine.CGroups = cgroups

	checker := periodic.NewChecker(log, func() {
		log.Debug("Periodic service check")
	})
	defer checker.Stop()
	engine.Periodic = checker

	runner := process.NewRunner(log, bootCommandTimeout)
	engine.Runner = runner

	tracker, err := config.NewTracker(log)
	if err != nil {
		log.Error("Failed creating configuration watcher: %v", err)
		tracker = nil
	} else {
		defer tracker.Close()
	}

	// Initial configuration replay, errors here mean a broken
	// include chain which we refuse to paper over.
	if err := engine.Reload(tracker); err != nil {
		log.Error("Initial configuration load failed: %v", err)
		if isPID1 {
			log.Error("Cannot boot without configuration, holding")
			shutdown.InfiniteHold()
		}
		os.Exit(1)
	}
	// Boot-time one-shots before leaving the bootstrap runlevel.
	if engine.NetworkScript != "" {
		runner.Run(engine.NetworkScript, "Starting networking")
	}
	if engine.Runparts != "" {
		runner.Run("run-parts "+engine.Runparts, "Running boot scripts in %s", engine.Runparts)
	}

	engine.SetRunlevel(engine.RunlevelCfg)
	log.Notice("Boot runlevel %d, %d entr%s registered",
		engine.Runlevel(), registry.Len(), plural(registry.Len()))

	if tracker != nil {
		tracker.WatchConfig(engine)
	}

	if err := engine.WriteStatusFile(statusPath, socketPath); err != nil {
		log.Warn("Failed writing status file: %v", err)
	}
	defer os.Remove(statusPath)

	ctx := context.Background()
	loop := eventloop.New(engine, tracker, log)
	loop.AutoReload = autoReload
	loop.SetPID1Mode(isPID1)
	// A reload can change rcsd or the runlevel; keep the status file
	// current for finixctl.
	loop.OnReload = func() {
		if err := engine.WriteStatusFile(statusPath, socketPath); err != nil {
			log.Warn("Failed refreshing status file: %v", err)
		}
	}

	ctrl := control.NewServer(engine, registry, socketPath, log)
	ctrl.ReloadFunc = func() error {
		loop.RequestReload()
		return nil
	}
	ctrl.ShutdownFunc = loop.RequestShutdown
	if err := ctrl.Start(ctx); err != nil {
		log.Error("Failed to start control socket: %v", err)
	} else {
		defer ctrl.Stop()
	}

	if err := loop.Run(ctx); err != nil {
		if err == context.Canceled {
			log.Info("Event loop cancelled")
		} else {
			log.Error("Event loop error: %v", err)
		}
	}

	if isPID1 {
		seq := shutdown.Sequence{
			Script: engine.ShutdownScript,
			Delay:  time.Duration(engine.RebootDelay) * time.Second,
		}
		seq.Execute(loop.ShutdownType(), log)
		// Execute does not return.
	}

	log.Info("finix shutdown complete")
}

type bootOptions struct {
	rescue bool
	single bool
	debug  bool
}

// parseBootOptions scans the kernel command line and our own
// positional arguments for boot mode requests.
func parseBootOptions(cmdline string, args []string) bootOptions {
	var opts bootOptions
	scan := func(word string) {
		switch word {
		case "rescue", "recover":
			opts.rescue = true
		case "single", "S", "s", "1":
			opts.single = true
		case "finix.debug", "--debug", "debug":
			opts.debug = true
		}
	}
	for _, word := range strings.Fields(cmdline) {
		scan(word)
	}
	for _, word := range args {
		scan(word)
	}
	return opts
}

func readKernelCmdline() string {
	data, err := os.ReadFile("/proc/cmdline")
	if err != nil {
		return ""
	}
	return string(data)
}

func parseLogLevel(s string) logging.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logging.LevelDebug
	case "info":
		return logging.LevelInfo
	case "notice":
		return logging.LevelNotice
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
