package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"echodoc/internal/notify"
	"echodoc/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve exposes /chat, /upload, /upload-policy and /send over HTTP.
Uploaded documents are added to the index and the index is saved after
every upload when a path is configured.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := server.New(server.Deps{
		Conversation:   a.orchestrator,
		Ingester:       a.pipeline,
		Checklister:    a.checklist,
		Extractor:      a.extractor,
		Notifier:       a.notifier,
		UploadNotifier: notify.NewAsync(a.notifier, 10*time.Second, logger),
		AfterIngest:    a.persist,
	}, server.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		ChecklistPath:  cfg.Server.ChecklistPath,
	}, logger)
	return srv.ListenAndServe(ctx, addr)
}
