// Command kftray-core is the CLI entrypoint driving the Forward Supervisor
// over configurations from a file-backed store. Grounded on the teacher's
// cmd/root.go cobra+viper bootstrap (persistent --config/--log-level/
// --log-format flags, cobra.OnInitialize multi-path config search), adapted
// to kftray-core's own runtimeconfig/logging packages in place of the
// teacher's lib/logger.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kftray/kftray-core/internal/configstore"
	"github.com/kftray/kftray-core/internal/eventbus"
	"github.com/kftray/kftray-core/internal/helper/client"
	"github.com/kftray/kftray-core/internal/hostsfile"
	"github.com/kftray/kftray-core/internal/kubecache"
	"github.com/kftray/kftray-core/internal/logging"
	"github.com/kftray/kftray-core/internal/runtimeconfig"
)

const appID = "kftray-core"

var (
	cfgFile   string
	storePath string

	runtimeCfg   runtimeconfig.Config
	configStore  *configstore.FileStore
	kubeCache    *kubecache.Cache
	eventBus     *eventbus.Bus
	helperClient *client.Client
	hostsManager hostsfile.Manager
)

var rootCmd = &cobra.Command{
	Use:   "kftray-core",
	Short: "Manage Kubernetes port-forward sessions",
	Long: `kftray-core resolves Kubernetes targets, binds local listeners, and
relays traffic to them, restarting on failure and tracking every
session's state for other processes to observe.`,
}

// Execute runs the root command. Called by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDependencies)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "runtime config file (default: search kftray-core.yaml)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "./kftray-configs.yaml", "configuration store file")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(startCmd, stopCmd, listCmd, statusCmd, helperCmd, hostsCmd)
}

func initConfig() {
	logLevel := viper.GetString("log-level")
	logFormat := viper.GetString("log-format")

	var level logging.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = logging.LevelDebug
	case "warn", "warning":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	default:
		level = logging.LevelInfo
	}

	var format logging.Format
	if strings.ToLower(logFormat) == "json" {
		format = logging.FormatJSON
	} else {
		format = logging.FormatText
	}

	logging.InitLogger(logging.Config{Level: level, Format: format, Output: os.Stderr})

	cfg, err := runtimeconfig.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: loading runtime config: %v\n", err)
	}
	runtimeCfg = cfg
}

// initDependencies wires the collaborators every subcommand shares: the
// kube client cache, event bus, helper client, hosts manager and
// configuration store. No network supervisor controller is created here or
// elsewhere in this command, so forwards are not bulk-restarted when
// connectivity returns.
func initDependencies() {
	kubeCache = kubecache.New(runtimeCfg.KubeClientTTL)
	eventBus = eventbus.New()
	helperClient = client.New(appID, runtimeCfg.HelperSocketPath)
	hostsManager = hostsfile.NewManager(helperClient, hostsfile.DefaultPath())

	store, err := configstore.Open(storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening configuration store %s: %v\n", storePath, err)
		os.Exit(1)
	}
	configStore = store
}
