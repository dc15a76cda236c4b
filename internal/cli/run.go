package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/config"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/gateway"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/logging"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/tui"
)

var (
	dryRun      bool
	interactive bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the mesh gateway",
	Long: `Start the Meshtastic mesh gateway.

The gateway connects to a single physical radio over serial or TCP,
keeps a durable view of mesh state, runs whatever automations are
configured in the settings table, and serves a virtual-device listener
to auxiliary clients.

Use --interactive or -i to run with an interactive TUI.`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate configuration without starting the gateway")
	runCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "run with interactive TUI")
	runCmd.Flags().String("transport.serial.port", "", "serial port of the radio (overrides the config file)")

	_ = viper.BindPFlag("transport.serial.port", runCmd.Flags().Lookup("transport.serial.port"))
}

func runGateway(_ *cobra.Command, _ []string) error {
	logCfg := logging.Config{
		Level:  viper.GetString("logging.level"),
		Format: viper.GetString("logging.format"),
	}

	if interactive {
		logCfg.Format = "text"
		logCfg.Level = "error"
	}

	if err := logging.Initialize(logCfg); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	if cfgFile := viper.ConfigFileUsed(); cfgFile != "" {
		logging.Info("Using config file", zap.String("path", cfgFile))
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if dryRun {
		fmt.Println("Configuration is valid!")
		fmt.Printf("  Transport: %s\n", cfg.Transport.Type)
		fmt.Printf("  Virtual device: enabled=%t addr=%s admin-commands=%t\n",
			cfg.VirtualDevice.Enabled, cfg.VirtualDevice.Addr, cfg.VirtualDevice.AllowAdminCommands)
		fmt.Printf("  Store: %s\n", cfg.Store.Path)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw, err := gateway.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build gateway: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	if interactive {
		go func() {
			<-sigChan
			cancel()
		}()

		if err := tui.Run(gw); err != nil {
			logging.Error("TUI error", zap.Error(err))
		}
	} else {
		logging.Info("Gateway is running. Press Ctrl+C to stop.")
		<-sigChan
		logging.Info("Received shutdown signal")
	}

	if err := gw.Stop(); err != nil {
		logging.Error("Error stopping gateway", zap.Error(err))
	}

	return nil
}
