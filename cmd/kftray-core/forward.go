package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kftray/kftray-core/internal/engine"
	"github.com/kftray/kftray-core/internal/model"
	"github.com/kftray/kftray-core/internal/resolver"
	"github.com/kftray/kftray-core/internal/statusui"
	"github.com/kftray/kftray-core/internal/supervisor"
)

var startAll bool
var watchStatus bool

var startCmd = &cobra.Command{
	Use:   "start [id...]",
	Short: "Resolve, bind, and serve one or more configurations until interrupted",
	RunE:  runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop [id...]",
	Short: "Mark configurations stopped in the store (best effort; the owning process must still exit)",
	RunE:  runStop,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every configuration in the store with its last-known state",
	RunE:  runList,
}

func init() {
	startCmd.Flags().BoolVar(&startAll, "all", false, "start every configuration in the store")
	startCmd.Flags().BoolVar(&watchStatus, "watch", false, "show the live status table instead of blocking silently")
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configs, err := selectConfigurations(ctx, args)
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		return fmt.Errorf("no configurations selected: pass one or more ids or --all")
	}

	ownerPID := os.Getpid()

	supervisors := make([]*supervisor.Supervisor, 0, len(configs))
	for _, cfg := range configs {
		sup := supervisor.New(cfg, supervisorDependencies())
		if err := sup.Start(ctx, ownerPID); err != nil {
			return fmt.Errorf("starting configuration %d: %w", cfg.ID, err)
		}
		supervisors = append(supervisors, sup)
		fmt.Printf("started configuration %d (%s -> %s:%d)\n", cfg.ID, cfg.Target, cfg.EffectiveLocalAddress(), cfg.LocalPort)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if watchStatus {
		program := tea.NewProgram(statusui.New(eventBus, 64))
		go func() {
			<-sigCh
			program.Quit()
		}()
		if _, err := program.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "status view error: %v\n", err)
		}
	} else {
		<-sigCh
	}

	var wg sync.WaitGroup
	for _, sup := range supervisors {
		wg.Add(1)
		go func(s *supervisor.Supervisor) {
			defer wg.Done()
			if err := s.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "stopping: %v\n", err)
			}
		}(sup)
	}
	wg.Wait()

	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := configStore.UpdateState(ctx, id, false, 0); err != nil {
			return fmt.Errorf("marking configuration %d stopped: %w", id, err)
		}
		fmt.Printf("configuration %d marked stopped\n", id)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	all := configStore.All()
	if len(all) == 0 {
		fmt.Println("no configurations in store")
		return nil
	}

	fmt.Printf("%-6s %-10s %-8s %-30s %-20s %-8s %-8s\n", "ID", "WORKLOAD", "PROTO", "TARGET", "LOCAL", "RUNNING", "PID")
	for _, cfg := range all {
		running, pid, _ := configStore.State(cfg.ID)
		local := fmt.Sprintf("%s:%d", cfg.EffectiveLocalAddress(), cfg.LocalPort)
		fmt.Printf("%-6d %-10s %-8s %-30s %-20s %-8t %-8d\n", cfg.ID, cfg.WorkloadType, cfg.Protocol, cfg.Target, local, running, pid)
	}
	return nil
}

func selectConfigurations(ctx context.Context, args []string) ([]model.Configuration, error) {
	if startAll {
		return configStore.All(), nil
	}

	ids, err := parseIDs(args)
	if err != nil {
		return nil, err
	}

	configs := make([]model.Configuration, 0, len(ids))
	for _, id := range ids {
		cfg, err := configStore.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid configuration id %q: %w", arg, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func supervisorDependencies() supervisor.Dependencies {
	return supervisor.Dependencies{
		Clients:  kubeCache,
		Resolver: supervisor.ResolverFunc(resolver.Resolve),
		Opener: engine.Opener{
			HTTPLogDir:         runtimeCfg.HTTPLogDir,
			HTTPLogRotateBytes: runtimeCfg.HTTPLogRotateBytes,
		},
		Helper: helperClient,
		Store:  configStore,
		Events: eventBus,
	}
}
