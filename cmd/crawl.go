package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-archiver/internal/archive"
	"github.com/JakeFAU/crawl-archiver/internal/clock"
	"github.com/JakeFAU/crawl-archiver/internal/crawler"
	"github.com/JakeFAU/crawl-archiver/internal/id"
	"github.com/JakeFAU/crawl-archiver/internal/orchestrator"
	"github.com/JakeFAU/crawl-archiver/internal/server"
	localstorage "github.com/JakeFAU/crawl-archiver/internal/storage/local"
)

type crawlOptions struct {
	url      string
	depth    int
	maxPages int
	out      string
	zip      bool
}

// newCrawlCmd creates the one-shot 'crawl' subcommand.
func newCrawlCmd(cfgFile *string) *cobra.Command {
	opts := crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl a website and save it as markdown files",
		Example: `  crawl-archiver crawl --url https://docs.firecrawl.dev
  crawl-archiver crawl --url https://example.com --depth 3 --max-pages 100
  crawl-archiver crawl -u blog.example.com -d 1 -m 25 --zip`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, *cfgFile, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.url, "url", "u", "", "the base URL to crawl (required)")
	flags.IntVarP(&opts.depth, "depth", "d", crawler.DefaultDepth, "maximum crawl depth")
	flags.IntVarP(&opts.maxPages, "max-pages", "m", crawler.DefaultMaxPages, "maximum number of pages to crawl")
	flags.StringVarP(&opts.out, "out", "o", "firecrawl_output", "output directory")
	flags.BoolVar(&opts.zip, "zip", false, "write a single zip archive instead of a page tree")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func runCrawl(cmd *cobra.Command, cfgFile string, opts crawlOptions) error {
	cfg, logger, err := loadRuntime(cfgFile)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if err := cfg.ValidateCLI(); err != nil {
		return err
	}

	req := crawler.Request{URL: opts.url, Depth: opts.depth, MaxPages: opts.maxPages}
	if err := req.Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	spin := spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
	spin.Suffix = " submitting crawl for " + req.URL
	spin.Start()
	onProgress := func(p orchestrator.Progress) {
		spin.Lock()
		spin.Suffix = fmt.Sprintf(" %s: %d/%d pages (job %s)", p.Status, p.Completed, p.Total, p.JobID)
		spin.Unlock()
	}

	clk := clock.System{}
	crawl, err := server.NewCrawler(cfg, clk, onProgress, logger)
	if err != nil {
		spin.Stop()
		return err
	}
	result, err := crawl.Crawl(cmd.Context(), req)
	spin.Stop()
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	if opts.zip {
		store, err := localstorage.New(localstorage.Config{BaseDir: opts.out})
		if err != nil {
			return err
		}
		builder := archive.NewBuilder(store, id.UUID{}, clk, archive.Config{
			TempDir:    cfg.Archive.TempDir,
			WriteIndex: cfg.Archive.WriteIndex,
		}, logger.Named("archive"))
		arch, err := builder.Build(cmd.Context(), req, result)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Crawl completed: %d pages\nArchive saved to: %s\n",
			arch.Pages, filepath.Join(opts.out, arch.Name))
		return nil
	}

	now := clk.Now()
	dir := filepath.Join(opts.out, strings.TrimSuffix(archive.ArchiveName(req, now, ""), ".zip"))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	entries, err := archive.Stage(dir, req, result, now, archive.StageOptions{WriteIndex: cfg.Archive.WriteIndex})
	if err != nil {
		return err
	}
	logger.Debug("crawl saved", zap.String("dir", dir), zap.Int("pages", len(entries)))
	_, _ = fmt.Fprintf(out, "Crawl completed: %d pages\nOutput saved to: %s\n", len(entries), dir)
	return nil
}
