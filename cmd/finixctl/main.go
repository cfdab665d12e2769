// finixctl is the control CLI for a running finix daemon.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/finixos/finix/pkg/config"
	"github.com/finixos/finix/pkg/control"
	"github.com/finixos/finix/pkg/shutdown"
)

const defaultSocket = "/run/finix.socket"

func main() {
	var (
		socketPath  string
		showVersion bool
	)

	flag.StringVarP(&socketPath, "socket", "s", "", "control socket path")
	flag.BoolVar(&showVersion, "version", false, "show version and exit")
	flag.Usage = printUsage
	flag.Parse()

	if showVersion {
		fmt.Println("finixctl version 0.1.0")
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	sock := resolveSocket(socketPath)
	client, err := control.Dial(sock)
	if err != nil {
		fatal("Failed to connect to finix at %s: %v", sock, err)
	}
	defer client.Close()

	switch args[0] {
	case "reload":
		err = cmdReload(client)
	case "status", "list", "ls":
		err = cmdStatus(client)
	case "runlevel":
		err = cmdRunlevel(client)
	case "version":
		err = cmdVersion(client)
	case "poweroff":
		err = client.Shutdown(shutdown.Poweroff)
	case "reboot":
		err = client.Shutdown(shutdown.Reboot)
	case "halt":
		err = client.Shutdown(shutdown.Halt)
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fatal("%v", err)
	}
}

// resolveSocket prefers the explicit flag, then the socket path the
// daemon recorded in its status file, then the compiled-in default.
func resolveSocket(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if status, err := config.ReadStatusFile(config.DefaultStatusPath); err == nil {
		if sock := status["FINIX_SOCKET"]; sock != "" {
			return sock
		}
	}
	return defaultSocket
}

func cmdReload(client *control.Client) error {
	if err := client.Reload(); err != nil {
		return err
	}
	fmt.Println("Reload requested")
	return nil
}

func cmdStatus(client *control.Client) error {
	entries, err := client.ListEntries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No entries registered")
		return nil
	}
	fmt.Printf("%-24s %-8s %s\n", "NAME", "TYPE", "RUNLEVELS")
	for _, en := range entries {
		fmt.Printf("%-24s %-8s %s\n", en.Key, en.Kind, en.Runlevels)
	}
	return nil
}

func cmdRunlevel(client *control.Client) error {
	lvl, err := client.Runlevel()
	if err != nil {
		return err
	}
	fmt.Println(lvl)
	return nil
}

func cmdVersion(client *control.Client) error {
	v, err := client.Version()
	if err != nil {
		return err
	}
	fmt.Printf("finix control protocol version %d\n", v)
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: finixctl [options] <command>

Commands:
  status            List registered entries
  reload            Request a configuration reload
  runlevel          Show the current runlevel
  version           Show the daemon's protocol version
  halt              Halt the system
  poweroff          Power off the system
  reboot            Reboot the system

Options:
`)
	flag.PrintDefaults()
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "finixctl: "+format+"\n", args...)
	os.Exit(1)
}
