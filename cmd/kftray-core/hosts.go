package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Inspect or clean up domain-alias hosts-file entries",
}

var hostsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every kftray-managed hosts-file entry",
	RunE:  runHostsList,
}

var hostsCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove every kftray-managed hosts-file entry (use when entries outlive their owning process)",
	RunE:  runHostsClean,
}

func init() {
	hostsCmd.AddCommand(hostsListCmd, hostsCleanCmd)
}

func runHostsList(cmd *cobra.Command, args []string) error {
	records, err := hostsManager.List()
	if err != nil {
		return fmt.Errorf("listing hosts entries: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("no managed hosts entries")
		return nil
	}

	fmt.Printf("%-20s %-15s %s\n", "ID", "IP", "HOSTNAME")
	for _, rec := range records {
		fmt.Printf("%-20s %-15s %s\n", rec.ID, rec.Entry.IP, rec.Entry.Hostname)
	}
	return nil
}

func runHostsClean(cmd *cobra.Command, args []string) error {
	if err := hostsManager.RemoveAll(); err != nil {
		return fmt.Errorf("removing hosts entries: %w", err)
	}
	fmt.Println("removed every managed hosts entry")
	return nil
}
