// Command kftray-helper is the privileged daemon (spec §4.9, §4.10): it
// serves the Helper Protocol over a unix domain socket and, run with
// "install"/"uninstall", registers or removes itself as a long-running OS
// service so it survives reboots without a user re-launching it. Grounded
// on the teacher's cobra command-tree layout (one file per subcommand) and
// original_source's kftray-helper platform-service split (install/uninstall/
// run_service per OS), reimplemented with Go's os/exec against each
// platform's native service manager since no example in the corpus
// vendors a service-management library.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kftray/kftray-core/internal/helper/installer"
	"github.com/kftray/kftray-core/internal/helper/server"
	"github.com/kftray/kftray-core/internal/logging"
	"github.com/kftray/kftray-core/internal/runtimeconfig"
)

var socketPath string

var rootCmd = &cobra.Command{
	Use:   "kftray-helper",
	Short: "Privileged helper daemon for loopback addresses, hosts-file edits, and address pooling",
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Run the helper server in the foreground",
	RunE:  runService,
}

var installCmd = &cobra.Command{
	Use:   "install [service-name]",
	Short: "Register this binary as an OS service (invoked by kftray-core's elevation path)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInstall,
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall [service-name]",
	Short: "Remove the OS service registration",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runUninstall,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Exit 0 if the helper is reachable over its socket, 1 otherwise",
	RunE:  runStatus,
}

func init() {
	logging.InitDefaultLogger()

	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", runtimeconfig.Default().HelperSocketPath, "unix domain socket path")
	rootCmd.AddCommand(serviceCmd, installCmd, uninstallCmd, statusCmd)
}

// Execute runs the root command. Called by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runService(cmd *cobra.Command, args []string) error {
	srv := server.New(socketPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		srv.Stop()
		cancel()
	}()

	fmt.Printf("kftray-helper serving on %s\n", socketPath)
	return srv.Serve(ctx)
}

func runInstall(cmd *cobra.Command, args []string) error {
	name := installer.DefaultServiceName
	if len(args) == 1 {
		name = args[0]
	}

	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving own executable path: %w", err)
	}

	if err := installPlatformService(name, exePath); err != nil {
		return fmt.Errorf("installing service %q: %w", name, err)
	}
	fmt.Printf("service %q installed\n", name)
	return nil
}

func runUninstall(cmd *cobra.Command, args []string) error {
	name := installer.DefaultServiceName
	if len(args) == 1 {
		name = args[0]
	}

	if err := uninstallPlatformService(name); err != nil {
		return fmt.Errorf("uninstalling service %q: %w", name, err)
	}
	fmt.Printf("service %q uninstalled\n", name)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	if err != nil {
		fmt.Println("helper is not reachable")
		os.Exit(1)
		return nil
	}
	conn.Close()
	fmt.Println("helper is reachable")
	return nil
}
