package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/humanlog"
	"github.com/spf13/viper"

	"github.com/mkoskinen/librarian/cmd/audible"
	"github.com/mkoskinen/librarian/cmd/goodreads"
	"github.com/mkoskinen/librarian/cmd/kindle"
	"github.com/mkoskinen/librarian/internal/catalog"
	"github.com/mkoskinen/librarian/internal/config"
	"github.com/mkoskinen/librarian/internal/covers"
	"github.com/mkoskinen/librarian/internal/enrich"
	"github.com/mkoskinen/librarian/internal/resolve"
	"github.com/mkoskinen/librarian/internal/tui"
)

// Substitutable in tests.
var (
	importGoodreads    = goodreads.ImportFile
	importKindle       = kindle.ImportFile
	importAudible      = audible.ImportFile
	consolidateAuthors = resolve.ConsolidateAuthors
	reviewApprovals    = tui.ReviewApprovals
	applyApprovals     = enrich.ApplyApprovals
	runEnrichment      = func(ctx context.Context, cfg enrich.Config) (enrich.Summary, error) {
		return enrich.New(cfg).Run(ctx)
	}
)

// CLI is the complete command structure for librarian.
type CLI struct {
	// Global flags
	DBFile      string `help:"Path to catalog SQLite database file" default:"./librarian.db"`
	CacheDBFile string `help:"Path to cache SQLite database file" default:"./cache.db"`
	CoversDir   string `help:"Directory for downloaded cover images" default:"./covers"`

	Import    ImportCmd    `cmd:"" help:"Import library exports into the catalog"`
	Enrich    EnrichCmd    `cmd:"" help:"Enrich catalog books from metadata providers"`
	Authors   AuthorsCmd   `cmd:"" help:"Author maintenance operations"`
	Approvals ApprovalsCmd `cmd:"" help:"Manage pending cover replacements"`
}

// ImportCmd groups the import subcommands, one per export format.
type ImportCmd struct {
	Goodreads GoodreadsCmd `cmd:"" help:"Import books from a Goodreads library export CSV"`
	Kindle    KindleCmd    `cmd:"" help:"Import books from a Kindle library JSON export"`
	Audible   AudibleCmd   `cmd:"" help:"Import books from an Audible library TSV export"`
}

// GoodreadsCmd imports a Goodreads CSV export.
type GoodreadsCmd struct {
	Input string `short:"f" help:"Path to Goodreads library export CSV file"`
}

// KindleCmd imports a Kindle JSON export.
type KindleCmd struct {
	Input string `short:"f" help:"Path to Kindle library JSON export file"`
}

// AudibleCmd imports an Audible TSV export.
type AudibleCmd struct {
	Input string `short:"f" help:"Path to Audible library TSV export file"`
}

// EnrichCmd runs the enrichment pipeline.
type EnrichCmd struct {
	BatchSize    int    `help:"Books per batch" default:"0"`
	Limit        int    `help:"Stop after this many books (0 = no limit)" default:"0"`
	ReplaceBad   bool   `help:"Re-validate existing covers and replace the ones that fail"`
	AutoApprove  bool   `help:"Apply low-confidence replacement covers without review"`
	GoogleAPIKey string `help:"Google Books API key (optional, raises quota)" env:"GOOGLE_BOOKS_API_KEY"`
}

// AuthorsCmd groups author maintenance subcommands.
type AuthorsCmd struct {
	Dedupe DedupeCmd `cmd:"" help:"Merge duplicate author records"`
}

// DedupeCmd consolidates duplicate authors.
type DedupeCmd struct{}

// ApprovalsCmd groups the pending-approval subcommands.
type ApprovalsCmd struct {
	List   ApprovalsListCmd   `cmd:"" help:"Write pending approvals to a YAML report"`
	Review ApprovalsReviewCmd `cmd:"" help:"Review pending approvals interactively"`
	Apply  ApprovalsApplyCmd  `cmd:"" help:"Apply approved cover replacements"`
}

// ApprovalsListCmd writes the pending report.
type ApprovalsListCmd struct {
	Output string `short:"o" help:"Report path (defaults to approvals.file from config)"`
}

// ApprovalsReviewCmd runs the interactive review TUI.
type ApprovalsReviewCmd struct{}

// ApprovalsApplyCmd applies approved entries.
type ApprovalsApplyCmd struct{}

// Execute runs the Kong-based CLI.
func Execute() {
	initLogging()
	initConfig()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("librarian"),
		kong.Description("A personal book catalog: import library exports and enrich them with provider metadata."),
		kong.UsageOnError(),
	)

	updateGlobalConfig(&cli)

	if err := ctx.Run(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func initLogging() {
	handler := humanlog.NewHandler(os.Stdout, &humanlog.Options{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("Fatal error reading config file", "error", err)
			os.Exit(1)
		}
	}

	config.InitConfig()
}

func updateGlobalConfig(cli *CLI) {
	config.SetDBFile(cli.DBFile)
	viper.Set("cache.dbfile", cli.CacheDBFile)
	config.CoversDir = cli.CoversDir
}

func openCatalog() (*catalog.DB, error) {
	db, err := catalog.Open(config.DBFile)
	if err != nil {
		return nil, fmt.Errorf("opening catalog database: %w", err)
	}
	return db, nil
}

// Run methods for each command

func (g *GoodreadsCmd) Run() error {
	input := g.Input
	if input == "" {
		input = viper.GetString("goodreads.csvfile")
	}
	if input == "" {
		return fmt.Errorf("input CSV file is required (provide via --input flag or goodreads.csvfile in config)")
	}

	db, err := openCatalog()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	_, err = importGoodreads(input, db)
	return err
}

func (k *KindleCmd) Run() error {
	input := k.Input
	if input == "" {
		input = viper.GetString("kindle.jsonfile")
	}
	if input == "" {
		return fmt.Errorf("input JSON file is required (provide via --input flag or kindle.jsonfile in config)")
	}

	db, err := openCatalog()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	_, err = importKindle(input, db)
	return err
}

func (a *AudibleCmd) Run() error {
	input := a.Input
	if input == "" {
		input = viper.GetString("audible.tsvfile")
	}
	if input == "" {
		return fmt.Errorf("input TSV file is required (provide via --input flag or audible.tsvfile in config)")
	}

	db, err := openCatalog()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	_, err = importAudible(input, db)
	return err
}

func (e *EnrichCmd) Run() error {
	db, err := openCatalog()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	store, err := covers.NewStore(config.CoversDir)
	if err != nil {
		return err
	}

	batchSize := e.BatchSize
	if batchSize <= 0 {
		batchSize = viper.GetInt("enrich.batchsize")
	}
	replaceBad := e.ReplaceBad || viper.GetBool("enrich.replacebad")
	config.SetReplaceBadCovers(replaceBad)
	autoApprove := e.AutoApprove || viper.GetBool("enrich.autoapprove")
	config.AutoApprove = autoApprove

	summary, err := runEnrichment(context.Background(), enrich.Config{
		DB:          db,
		Sources:     enrich.DefaultSources(e.GoogleAPIKey),
		CoverStore:  store,
		CursorFile:  viper.GetString("enrich.cursorfile"),
		BatchSize:   batchSize,
		Limit:       e.Limit,
		ReplaceBad:  replaceBad,
		AutoApprove: autoApprove,
	})
	if err != nil {
		return err
	}

	slog.Info("Enrichment finished",
		"processed", summary.Processed,
		"enriched", summary.Enriched,
		"partial", summary.Partial,
		"not_found", summary.NotFound,
		"failed", summary.Failed,
		"approvals", summary.Approvals)
	return nil
}

func (d *DedupeCmd) Run() error {
	db, err := openCatalog()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	result, err := consolidateAuthors(db)
	if err != nil {
		return err
	}
	slog.Info("Author dedupe finished", "groups", result.Groups, "removed", result.Removed)
	return nil
}

func (l *ApprovalsListCmd) Run() error {
	db, err := openCatalog()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	pending, err := db.ApprovalsByState(catalog.ApprovalPending)
	if err != nil {
		return err
	}

	output := l.Output
	if output == "" {
		output = viper.GetString("approvals.file")
	}
	if err := enrich.WriteApprovalsReport(output, pending); err != nil {
		return err
	}
	slog.Info("Pending approvals written", "count", len(pending), "file", output)
	return nil
}

func (r *ApprovalsReviewCmd) Run() error {
	db, err := openCatalog()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	pending, err := db.ApprovalsByState(catalog.ApprovalPending)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		slog.Info("No pending approvals")
		return nil
	}

	decisions, err := reviewApprovals(pending)
	if err != nil {
		return err
	}
	for _, d := range decisions {
		if err := db.SetApprovalState(d.ApprovalID, d.State); err != nil {
			return err
		}
	}
	slog.Info("Review finished", "decided", len(decisions), "remaining", len(pending)-len(decisions))
	return nil
}

func (a *ApprovalsApplyCmd) Run() error {
	db, err := openCatalog()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	store, err := covers.NewStore(config.CoversDir)
	if err != nil {
		return err
	}

	applied, err := applyApprovals(context.Background(), db, covers.NewValidator(), store)
	if err != nil {
		return err
	}
	slog.Info("Approved covers applied", "applied", applied)
	return nil
}
