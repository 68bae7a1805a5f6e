package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/batchstream/internal/config"
	"github.com/danmuck/batchstream/internal/procedures"
	"github.com/danmuck/batchstream/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the builtin procedures as batch streams",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		addr, _ := cmd.Flags().GetString("addr")

		cfg, err := loadServeConfig(path)
		if err != nil {
			return err
		}
		if addr != "" {
			cfg.Addr = addr
		}

		gin.SetMode(gin.ReleaseMode)
		srv, err := server.New(cfg, procedures.NewBuiltinRegistry())
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().String("config", "", "path to a TOML config (defaults apply when empty)")
	serveCmd.Flags().String("addr", "", "listen address, overrides the config")
}

func loadServeConfig(path string) (config.ServerConfig, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}
