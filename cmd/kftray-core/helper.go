package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kftray/kftray-core/internal/helper/installer"
)

var serviceName string

var helperCmd = &cobra.Command{
	Use:   "helper",
	Short: "Install, remove, or check the privileged helper daemon",
}

var helperInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Elevate and install the helper as a background service",
	RunE:  runHelperInstall,
}

var helperUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Elevate and remove the helper service",
	RunE:  runHelperUninstall,
}

var helperStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the helper is reachable",
	RunE:  runHelperStatus,
}

func init() {
	helperCmd.PersistentFlags().StringVar(&serviceName, "service-name", installer.DefaultServiceName, "service name registered with the OS service manager")
	helperCmd.AddCommand(helperInstallCmd, helperUninstallCmd, helperStatusCmd)
}

func runHelperInstall(cmd *cobra.Command, args []string) error {
	helperPath, err := installer.FindHelperBinary()
	if err != nil {
		return fmt.Errorf("locating kftray-helper binary: %w", err)
	}
	if err := installer.Install(helperPath, serviceName); err != nil {
		return fmt.Errorf("installing helper service: %w", err)
	}
	fmt.Printf("helper service %q installed from %s\n", serviceName, helperPath)
	return nil
}

func runHelperUninstall(cmd *cobra.Command, args []string) error {
	helperPath, err := installer.FindHelperBinary()
	if err != nil {
		return fmt.Errorf("locating kftray-helper binary: %w", err)
	}
	if err := installer.Uninstall(helperPath, serviceName); err != nil {
		return fmt.Errorf("uninstalling helper service: %w", err)
	}
	fmt.Printf("helper service %q uninstalled\n", serviceName)
	return nil
}

func runHelperStatus(cmd *cobra.Command, args []string) error {
	if helperClient.Ping(context.Background()) {
		fmt.Println("helper is reachable")
		return nil
	}
	fmt.Println("helper is not reachable")
	os.Exit(1)
	return nil
}
