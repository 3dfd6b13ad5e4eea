package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/rotisserie/eris"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	"go.uber.org/zap"

	"github.com/Kishore276/Water-Quality-Analysis-System/internal/api"
	"github.com/Kishore276/Water-Quality-Analysis-System/internal/config"
	"github.com/Kishore276/Water-Quality-Analysis-System/internal/ingest"
	"github.com/Kishore276/Water-Quality-Analysis-System/internal/store"
	"github.com/Kishore276/Water-Quality-Analysis-System/internal/wqi"
)

type CLI struct {
	config.Config `embed:""`

	EnvFile kongdotenv.ENVFileConfig `embed:""`

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the HTTP API."`
	Score   ScoreCmd   `cmd:"" help:"Score one sample given as name=value pairs."`
	Import  ImportCmd  `cmd:"" help:"Validate and commit a CSV or XLSX dataset from a path or URL."`
	Migrate MigrateCmd `cmd:"" help:"Apply database migrations and exit."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("waterspot"),
		kong.Description("Water quality scoring and dataset ingestion."),
		kong.UsageOnError(),
	)

	logger, err := config.InitLogger(cli.LogLevel, cli.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kctx.BindTo(ctx, (*context.Context)(nil))
	if err := kctx.Run(&cli.Config); err != nil {
		zap.L().Error("waterspot: command failed", zap.String("command", kctx.Command()), zap.Error(err))
		logger.Sync() //nolint:errcheck
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return store.NewPostgres(ctx, cfg.DatabaseURL, &store.PoolConfig{MaxConns: cfg.PGMaxConns})
	default:
		if err := os.MkdirAll(dirOf(cfg.DBPath), 0o755); err != nil {
			return nil, eris.Wrap(err, "create database directory")
		}
		return store.OpenSQLite(cfg.DBPath)
	}
}

func openMigrated(ctx context.Context, cfg *config.Config) (store.Store, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	zap.L().Info("database migrated", zap.String("driver", cfg.DBDriver))
	return st, nil
}

func dirOf(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i > 0 {
		return path[:i]
	}
	return "."
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type ServeCmd struct{}

func (c *ServeCmd) Run(ctx context.Context, cfg *config.Config) error {
	st, err := openMigrated(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	server := api.NewServer(st, wqi.NewScorer(wqi.DefaultSchema()), api.Options{
		Port:            cfg.Port,
		CORSOrigins:     cfg.CORSOrigins,
		UploadRate:      cfg.UploadRate,
		MaxUploadBytes:  cfg.MaxUpload,
		BatchSize:       cfg.BatchSize,
		Workers:         cfg.Workers,
		ShutdownTimeout: cfg.ShutdownTimeout,
	})
	return server.Run(ctx)
}

type ScoreCmd struct {
	Pairs []string `arg:"" name:"param=value" help:"Measurements, e.g. ph=7.2 tds=300."`
}

func (c *ScoreCmd) Run() error {
	set := wqi.MeasurementSet{}
	for _, pair := range c.Pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return eris.Errorf("expected name=value, got %q", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return eris.Wrapf(err, "parameter %s", name)
		}
		set[strings.ToLower(strings.TrimSpace(name))] = v
	}

	scorer := wqi.NewScorer(wqi.DefaultSchema())
	if err := scorer.Schema().ValidateMeasurements(set); err != nil {
		return err
	}
	res, err := scorer.Score(set)
	if err != nil {
		return err
	}
	return printJSON(struct {
		wqi.Result
		Tips []wqi.Tip `json:"tips"`
	}{res, scorer.Tips(set, res)})
}

type ImportCmd struct {
	Location string `arg:"" help:"File path, file://, http(s):// or ftp:// URL."`
	Name     string `help:"Filename to record for the upload (defaults to the source name)."`
	DryRun   bool   `help:"Validate only; do not write records."`
	Strict   bool   `help:"Refuse to commit when any row fails validation."`
}

type importSummary struct {
	Source     string               `json:"source"`
	TotalRows  int                  `json:"totalRows"`
	Dropped    int                  `json:"droppedRows"`
	ErrorCount int                  `json:"errorCount"`
	Errors     []ingest.RowError    `json:"errors,omitempty"`
	Result     *ingest.ImportResult `json:"result,omitempty"`
}

func (c *ImportCmd) Run(ctx context.Context, cfg *config.Config) error {
	payload, err := ingest.NewFetcher(nil).Fetch(ctx, c.Location)
	if err != nil {
		return err
	}
	name := c.Name
	if name == "" {
		name = payload.Name
	}

	table, err := ingest.DecodeTable(payload.Name, payload.Data)
	if err != nil {
		return err
	}
	scorer := wqi.NewScorer(wqi.DefaultSchema())
	validation, err := ingest.NewValidator(scorer.Schema()).Validate(table)
	if err != nil {
		return err
	}

	summary := importSummary{
		Source:     name,
		TotalRows:  validation.TotalRows,
		Dropped:    table.Dropped,
		ErrorCount: validation.ErrorCount,
		Errors:     validation.Errors,
	}
	zap.L().Info("import: validated",
		zap.String("source", name),
		zap.Int("rows", validation.TotalRows),
		zap.Int("errors", validation.ErrorCount),
	)

	if c.DryRun {
		return printJSON(summary)
	}
	if c.Strict && validation.ErrorCount > 0 {
		if err := printJSON(summary); err != nil {
			return err
		}
		return eris.Errorf("import: %d validation errors, nothing committed", validation.ErrorCount)
	}

	st, err := openMigrated(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	importer := ingest.NewImporter(st, scorer, ingest.CommitOptions{
		BatchSize: cfg.BatchSize,
		Workers:   cfg.Workers,
	})
	summary.Result, err = importer.Process(ctx, name, table.Rows, payload.Data)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(ctx context.Context, cfg *config.Config) error {
	st, err := openMigrated(ctx, cfg)
	if err != nil {
		return err
	}
	return st.Close()
}
