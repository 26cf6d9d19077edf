package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-archiver/internal/server"
)

func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web front-end",
		Long: `Serves the crawl form, the crawl and download endpoints, /health and
/metrics, and sweeps archives older than the retention window. Requires
FIRECRAWL_API_KEY and ADMIN_PASSWORD.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime(*cfgFile)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if err := cfg.ValidateServer(); err != nil {
				logger.Error("refusing to start", zap.Error(err))
				return err
			}

			app, err := server.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}
}
