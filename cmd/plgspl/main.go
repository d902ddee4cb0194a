package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/plgspl/internal/batch"
	"github.com/pavelanni/plgspl/internal/config"
	"github.com/pavelanni/plgspl/internal/gradescope"
	appI18n "github.com/pavelanni/plgspl/internal/i18n"
	"github.com/pavelanni/plgspl/internal/ingest"
	"github.com/pavelanni/plgspl/internal/model"
	"github.com/pavelanni/plgspl/internal/registry"
	"github.com/pavelanni/plgspl/internal/shard"
	"github.com/pavelanni/plgspl/internal/store"
	"github.com/pavelanni/plgspl/internal/submission"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "plgspl",
		Short: "Turn PrairieLearn manual grading exports into Gradescope-ready PDFs",
	}

	pdf := pdfCmd()
	root.AddCommand(pdf, exportCmd(), splitCmd(), mergeCmd(), classlistCmd())

	// Make "pdf" the default when no subcommand is given.
	root.RunE = pdf.RunE

	// Register pdf flags on root so bare `plgspl --records ...` still works.
	root.Flags().AddFlagSet(pdf.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func pdfCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdf",
		Short: "Render submissions into page-budgeted PDF shards",
		RunE:  runPDF,
	}
	f := cmd.Flags()
	f.StringP("assessment", "a", "infoAssessment.json", "Assessment configuration with zones")
	f.StringP("records", "r", "", "Manual grading CSV export (required)")
	f.StringP("files", "f", "", "Directory of uploaded files (optional)")
	f.StringP("out", "o", "submissions", "Output file prefix")
	f.String("template-uid", "", "Student whose submission is the blank template (default: first student)")
	f.Bool("template-fill", true, "Fill unanswered question slots from the template submission")
	f.Int("pages-per-file", 0, "Maximum pages per output file (0 = use config)")
	f.String("db", "", "SQLite run ledger path (optional)")
	f.StringP("lang", "l", "en", "Language of fixed document text (en, es)")
	f.Bool("verify", false, "Re-open written shards and check their page counts")
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a recorded run as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "plgspl.db", "SQLite run ledger path")
	f.String("run", "", "Run id (default: latest run)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func splitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split <shard.pdf>",
		Short: "Split an output file into one PDF per student",
		Args:  cobra.ExactArgs(1),
		RunE:  runSplit,
	}
	f := cmd.Flags()
	f.String("out-dir", "students", "Directory for per-student PDFs")
	f.Int("pages", 0, "Pages per submission (0 = derive from the file name range)")
	f.StringP("records", "r", "", "Manual grading CSV used to name files by student id (optional)")
	f.StringP("assessment", "a", "infoAssessment.json", "Assessment configuration the shard was rendered from")
	addLogFlags(cmd)
	return cmd
}

func mergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge Gradescope scores into a PrairieLearn manual grading CSV",
		RunE:  runMerge,
	}
	f := cmd.Flags()
	f.StringP("summary", "s", "submissions_summary.json", "Summary JSON written by the pdf command")
	f.StringP("gradescope", "g", "", "Gradescope score export CSV (required)")
	f.Int("instance", 1, "Assessment instance number")
	f.StringP("output", "o", "pl_scores.csv", "Output file path (- for stdout)")
	addLogFlags(cmd)
	_ = cmd.MarkFlagRequired("gradescope")
	return cmd
}

func classlistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classlist",
		Short: "Write a mock Gradescope roster from a manual grading CSV",
		RunE:  runClasslist,
	}
	f := cmd.Flags()
	f.StringP("records", "r", "", "Manual grading CSV export (required)")
	f.StringP("output", "o", "classlist.csv", "Output file path (- for stdout)")
	addLogFlags(cmd)
	_ = cmd.MarkFlagRequired("records")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("PLGSPL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("plgspl")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/plgspl")
	v.AddConfigPath("/etc/plgspl")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runPDF(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx = appI18n.WithLanguage(ctx, v.GetString("lang"))

	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("load render config: %w", err)
	}
	if n := v.GetInt("pages-per-file"); n > 0 {
		cfg.PagesPerFile = n
	}

	recordsPath := v.GetString("records")
	if recordsPath == "" {
		return errors.New("--records is required")
	}
	assessmentPath := v.GetString("assessment")
	reg, err := registry.Load(assessmentPath)
	if err != nil {
		return fmt.Errorf("load assessment: %w", err)
	}
	records, err := ingest.LoadRecords(recordsPath)
	if err != nil {
		return err
	}
	subs, err := ingest.Build(ctx, records, reg, v.GetString("files"), cfg)
	if err != nil {
		return fmt.Errorf("build submissions: %w", err)
	}
	if len(subs) == 0 {
		return errors.New("no submissions found in records")
	}

	var tmpl *submission.Submission
	if uid := v.GetString("template-uid"); uid != "" {
		for _, s := range subs {
			if s.UID == uid {
				tmpl = s
				break
			}
		}
		if tmpl == nil {
			return fmt.Errorf("template student %s not found in records", uid)
		}
	}

	out := v.GetString("out")
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	opts := batch.Options{
		OutPrefix:    out,
		Config:       cfg,
		Template:     tmpl,
		TemplateFill: v.GetBool("template-fill"),
	}

	var (
		db  *store.Store
		run model.Run
	)
	if dbPath := v.GetString("db"); dbPath != "" {
		db, err = store.New(dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if run, err = startRun(db, out, v, cfg, tmpl); err != nil {
			return err
		}
		opts.Recorder = db.Recorder(run.ID)
	}

	res, err := batch.New(reg, opts).Run(ctx, subs)
	if err == nil && v.GetBool("verify") {
		err = shard.Verify(res.Shards, res.PagesPerSubmission)
	}
	if db != nil {
		if ferr := db.FinishRun(run.ID, err); ferr != nil {
			slog.Error("unable to record run outcome", "run", run.ID, "error", ferr)
		}
	}
	if err != nil {
		slog.Error("run failed", "error", err)
		return err
	}

	slog.Info("run complete",
		"students", len(subs),
		"shards", len(res.Shards),
		"pages_per_submission", res.PagesPerSubmission,
		"submissions_per_file", res.SubmissionsPerFile,
		"sample", res.SamplePath,
		"summary", res.SummaryPath,
		"run", run.ID,
	)
	return nil
}

func startRun(db *store.Store, out string, v *viper.Viper, cfg config.Config, tmpl *submission.Submission) (model.Run, error) {
	run, err := db.CreateRun(out)
	if err != nil {
		return run, fmt.Errorf("create run: %w", err)
	}
	inputs := model.RunInputs{
		Assessment:   v.GetString("assessment"),
		Records:      v.GetString("records"),
		Files:        v.GetString("files"),
		TemplateFill: v.GetBool("template-fill"),
		PagesPerFile: cfg.PagesPerFile,
	}
	if tmpl != nil {
		inputs.TemplateUID = tmpl.UID
	}
	if err := db.SetRunInputs(run.ID, inputs); err != nil {
		return run, fmt.Errorf("record run inputs: %w", err)
	}
	for key, path := range map[string]string{"assessment_sha256": inputs.Assessment, "records_sha256": inputs.Records} {
		data, err := os.ReadFile(path)
		if err != nil {
			return run, fmt.Errorf("read %s: %w", path, err)
		}
		if err := db.SetMetadata(run.ID, key, sha256sum(data)); err != nil {
			return run, fmt.Errorf("record %s: %w", key, err)
		}
	}
	slog.Info("run started", "run", run.ID, "db", v.GetString("db"))
	return run, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	id := v.GetString("run")
	if id == "" {
		latest, err := db.LatestRun()
		if err != nil {
			return fmt.Errorf("find latest run: %w", err)
		}
		id = latest.ID
	}
	export, err := db.ExportRun(id)
	if err != nil {
		return fmt.Errorf("export run: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	return writeOutput(v.GetString("output"), func(w io.Writer) error {
		if _, err := w.Write(data); err != nil {
			return err
		}
		// Ensure trailing newline.
		_, err := fmt.Fprintln(w)
		return err
	})
}

func runSplit(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	path := args[0]

	first, last, hasRange := shard.ParseRange(path)
	pages := v.GetInt("pages")
	if pages <= 0 {
		if !hasRange {
			return fmt.Errorf("cannot derive pages per submission from %s: pass --pages", path)
		}
		total, err := shard.PageCount(path)
		if err != nil {
			return err
		}
		pages = total / (last - first + 1)
	}

	var names []string
	if recordsPath := v.GetString("records"); recordsPath != "" {
		order, err := renderOrder(v, recordsPath)
		if err != nil {
			return err
		}
		if first < len(order) {
			names = order[first:]
		}
	}

	written, err := shard.Split(path, v.GetString("out-dir"), pages, names)
	if err != nil {
		return err
	}
	slog.Info("split complete", "files", len(written), "pages_per_submission", pages)
	return nil
}

// renderOrder rebuilds the cohort the pdf command rendered so shard
// positions map to the same students, skipped records included.
func renderOrder(v *viper.Viper, recordsPath string) ([]string, error) {
	if err := appI18n.Init("en"); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("load render config: %w", err)
	}
	reg, err := registry.Load(v.GetString("assessment"))
	if err != nil {
		return nil, fmt.Errorf("load assessment: %w", err)
	}
	records, err := ingest.LoadRecords(recordsPath)
	if err != nil {
		return nil, err
	}
	subs, err := ingest.Build(context.Background(), records, reg, "", cfg)
	if err != nil {
		return nil, fmt.Errorf("build submissions: %w", err)
	}
	return ingest.StudentIDs(subs), nil
}

func runMerge(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	summary, err := batch.ReadSummary(v.GetString("summary"))
	if err != nil {
		return err
	}
	f, err := os.Open(v.GetString("gradescope"))
	if err != nil {
		return fmt.Errorf("open gradescope export: %w", err)
	}
	defer f.Close()

	scores, err := gradescope.Merge(summary, f, v.GetInt("instance"))
	if err != nil {
		return fmt.Errorf("merge scores: %w", err)
	}
	if err := writeOutput(v.GetString("output"), func(w io.Writer) error {
		return gradescope.WriteScores(w, scores)
	}); err != nil {
		return err
	}
	slog.Info("scores merged", "rows", len(scores), "output", v.GetString("output"))
	return nil
}

func runClasslist(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	records, err := ingest.LoadRecords(v.GetString("records"))
	if err != nil {
		return err
	}
	return writeOutput(v.GetString("output"), func(w io.Writer) error {
		return gradescope.WriteClassList(w, records)
	})
}

// writeOutput runs write against stdout for "" or "-", else against a new file at path.
func writeOutput(path string, write func(io.Writer) error) error {
	if path == "" || path == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write output: %w", err)
	}
	return f.Close()
}
