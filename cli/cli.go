package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nhirsama/Goster-Ring/src/config"
	"github.com/nhirsama/Goster-Ring/src/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app 所有子命令共享的运行环境，在 PersistentPreRunE 中初始化
type app struct {
	configPath string
	logLevel   string
	deviceID   string
	simulate   bool

	cfg *config.Config
	log *zap.Logger
}

// Run 解析命令行并执行，收到 SIGINT/SIGTERM 时取消
func Run() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd 构造完整的命令树
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "goster-ring",
		Short:         "Smart ring protocol driver and history sync",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (YAML); RING_* environment variables override it")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.deviceID, "device", "", "Device ID (overrides device.id)")
	root.PersistentFlags().BoolVar(&a.simulate, "simulate", false, "Talk to a simulated ring instead of a relay")

	root.AddCommand(
		a.syncCmd(),
		a.listenCmd(),
		a.sendCmd(),
		a.decodeCmd(),
		a.replayCmd(),
		a.exportCmd(),
		a.runsCmd(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.deviceID != "" {
		cfg.Device.ID = a.deviceID
	}
	a.cfg = cfg

	l, err := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Service)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.log = l
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
