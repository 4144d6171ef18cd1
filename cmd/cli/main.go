package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-insights/internal/app"
	"github.com/dvloznov/statement-insights/internal/config"
	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/gcs"
	"github.com/dvloznov/statement-insights/internal/logger"
	"github.com/dvloznov/statement-insights/internal/pipeline"
	"github.com/dvloznov/statement-insights/internal/summary"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "analyze":
		runAnalyze(log)
	case "reanalyze":
		runReanalyze(log)
	case "rules":
		runRules(log)
	case "add-rule":
		runAddRule(log)
	case "update-rule":
		runUpdateRule(log)
	case "delete-rule":
		runDeleteRule(log)
	case "dry-run":
		runDryRun(log)
	case "categories":
		runCategories(log)
	case "review":
		runReview(log)
	case "override":
		runOverride(log)
	case "summary":
		runSummary(log)
	case "report":
		runReport(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Statement Insights CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  analyze      Load a CSV/JSONL rows file (local or gs://) and analyze it")
	fmt.Println("  reanalyze    Re-run categorization and detection for an upload")
	fmt.Println("  rules        List categorization rules")
	fmt.Println("  add-rule     Add a user rule")
	fmt.Println("  update-rule  Update a user rule")
	fmt.Println("  delete-rule  Delete a user rule")
	fmt.Println("  dry-run      Show which rule would categorize a description")
	fmt.Println("  categories   List categories")
	fmt.Println("  review       Confirm or dismiss an anomaly")
	fmt.Println("  override     Pin a transaction to a category")
	fmt.Println("  summary      Print the summary of an upload")
	fmt.Println("  report       Print the full report of an upload as JSON")
	fmt.Println("  help         Show this help message")
	fmt.Println("\nWithout database.url every command runs against in-memory stores,")
	fmt.Println("so only 'analyze', 'dry-run' and 'categories' are useful there.")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

type command struct {
	fs         *flag.FlagSet
	configPath *string
	asJSON     *bool
}

func newCommand(name string) *command {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return &command{
		fs:         fs,
		configPath: fs.String("config", "", "Path to a TOML config file (defaults to $INSIGHTS_CONFIG or ./insights.toml)"),
		asJSON:     fs.Bool("json", false, "Print JSON instead of text"),
	}
}

// start parses flags and wires the application. Logs go to stderr so stdout
// carries only command output.
func (c *command) start(log zerolog.Logger, opts app.Options) (context.Context, context.CancelFunc, *app.App) {
	if !c.fs.Parsed() {
		c.fs.Parse(os.Args[2:])
	}

	cfg, err := config.Load(*c.configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	opts.Service = "insights-cli"
	opts.LogOut = os.Stderr
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)

	a, err := app.New(ctx, cfg, opts)
	if err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	ctx = logger.WithContext(ctx, a.Log)
	return ctx, func() {
		if err := a.Close(); err != nil {
			a.Log.Error().Err(err).Msg("Failed to close connections")
		}
		cancel()
	}, a
}

func (c *command) printJSON(v any) bool {
	if !*c.asJSON {
		return false
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		os.Exit(1)
	}
	return true
}

func runAnalyze(log zerolog.Logger) {
	cmd := newCommand("analyze")
	file := cmd.fs.String("file", "", "Path or gs:// URI of a .csv or .jsonl rows file")
	publish := cmd.fs.Bool("publish", true, "Publish the report to storage.report_bucket when configured")
	export := cmd.fs.Bool("export", true, "Export to BigQuery when configured")
	cmd.fs.Parse(os.Args[2:])

	if *file == "" {
		log.Fatal().Msg("Error: --file is required")
	}

	ctx, done, a := cmd.start(log, app.Options{Objects: gcs.IsURI(*file)})
	defer done()

	a.Log.Info().Str("source", *file).Msg("Starting analysis")

	state := &pipeline.State{Source: *file, Filename: filepath.Base(*file)}
	if err := pipeline.NewIngestPipeline(a.PipelineOptions(*publish, *export)).Execute(ctx, state); err != nil {
		a.Log.Fatal().Err(err).Msg("Analysis failed")
	}

	if cmd.printJSON(state.Report) {
		return
	}
	fmt.Printf("Upload:    %s\n", state.UploadID)
	fmt.Printf("Evaluated: %d  Matched: %d  Skipped: %d\n",
		state.Result.Evaluated, state.Result.Matched, state.Result.Skipped)
	printSummary(state.Report)
	if state.ReportURI != "" {
		fmt.Printf("\nReport:    %s\n", state.ReportURI)
	}
	if state.ExportID != "" {
		fmt.Printf("Export:    %s\n", state.ExportID)
	}
}

func runReanalyze(log zerolog.Logger) {
	cmd := newCommand("reanalyze")
	uploadID := cmd.fs.String("upload-id", "", "Upload ID to analyze again")
	cmd.fs.Parse(os.Args[2:])

	if *uploadID == "" {
		log.Fatal().Msg("Error: --upload-id is required")
	}

	ctx, done, a := cmd.start(log, app.Options{})
	defer done()

	state := &pipeline.State{UploadID: *uploadID}
	if err := pipeline.NewAnalysisPipeline(a.PipelineOptions(true, true)).Execute(ctx, state); err != nil {
		a.Log.Fatal().Err(err).Msg("Analysis failed")
	}

	if cmd.printJSON(state.Result) {
		return
	}
	fmt.Printf("Evaluated: %d  Matched: %d  Skipped: %d  New anomalies: %d\n",
		state.Result.Evaluated, state.Result.Matched, state.Result.Skipped, len(state.Result.NewAnomalies))
}

func runRules(log zerolog.Logger) {
	cmd := newCommand("rules")
	ctx, done, a := cmd.start(log, app.Options{})
	defer done()

	list, err := a.Service.ListRules(ctx)
	if err != nil {
		a.Log.Fatal().Err(err).Msg("Failed to list rules")
	}
	if cmd.printJSON(list) {
		return
	}
	fmt.Printf("%-6s %-24s %-9s %-9s %-8s %s\n", "ID", "KEYWORD", "CATEGORY", "PRIORITY", "MATCHES", "SYSTEM")
	for _, r := range list {
		fmt.Printf("%-6d %-24s %-9d %-9d %-8d %t\n", r.ID, r.Keyword, r.CategoryID, r.Priority, r.MatchCount, r.System)
	}
}

func ruleFlags(cmd *command) (keyword *string, categoryID *int64, priority *string) {
	keyword = cmd.fs.String("keyword", "", "Keyword matched as a case-insensitive substring")
	categoryID = cmd.fs.Int64("category", 0, "Category ID")
	priority = cmd.fs.String("priority", "", "Priority, lower is evaluated first (default 0)")
	return keyword, categoryID, priority
}

// optionalPriority leaves the priority unset when the flag was not given.
func optionalPriority(log zerolog.Logger, s string) *int {
	if s == "" {
		return nil
	}
	p, err := strconv.Atoi(s)
	if err != nil {
		log.Fatal().Err(err).Str("priority", s).Msg("Error: --priority must be an integer")
	}
	return &p
}

func runAddRule(log zerolog.Logger) {
	cmd := newCommand("add-rule")
	keyword, categoryID, priority := ruleFlags(cmd)
	ctx, done, a := cmd.start(log, app.Options{})
	defer done()

	r, err := a.Service.AddRule(ctx, *keyword, *categoryID, optionalPriority(a.Log, *priority))
	if err != nil {
		a.Log.Fatal().Err(err).Msg("Failed to add rule")
	}
	if !cmd.printJSON(r) {
		fmt.Printf("Added rule %d: %q -> category %d (priority %d)\n", r.ID, r.Keyword, r.CategoryID, r.Priority)
	}
}

func runUpdateRule(log zerolog.Logger) {
	cmd := newCommand("update-rule")
	id := cmd.fs.Int64("id", 0, "Rule ID")
	keyword, categoryID, priority := ruleFlags(cmd)
	ctx, done, a := cmd.start(log, app.Options{})
	defer done()

	r, err := a.Service.UpdateRule(ctx, *id, *keyword, *categoryID, optionalPriority(a.Log, *priority))
	if err != nil {
		a.Log.Fatal().Err(err).Int64("rule_id", *id).Msg("Failed to update rule")
	}
	if !cmd.printJSON(r) {
		fmt.Printf("Updated rule %d: %q -> category %d (priority %d)\n", r.ID, r.Keyword, r.CategoryID, r.Priority)
	}
}

func runDeleteRule(log zerolog.Logger) {
	cmd := newCommand("delete-rule")
	id := cmd.fs.Int64("id", 0, "Rule ID")
	ctx, done, a := cmd.start(log, app.Options{})
	defer done()

	if err := a.Service.DeleteRule(ctx, *id); err != nil {
		a.Log.Fatal().Err(err).Int64("rule_id", *id).Msg("Failed to delete rule")
	}
	fmt.Printf("Deleted rule %d\n", *id)
}

func runDryRun(log zerolog.Logger) {
	cmd := newCommand("dry-run")
	description := cmd.fs.String("description", "", "Transaction description to categorize")
	ctx, done, a := cmd.start(log, app.Options{})
	defer done()

	res, rule, err := a.Service.DryRun(ctx, *description)
	if err != nil {
		a.Log.Fatal().Err(err).Msg("Dry run failed")
	}
	if cmd.printJSON(map[string]any{"result": res, "rule": rule}) {
		return
	}
	if rule == nil {
		fmt.Println("No rule matches.")
		return
	}
	fmt.Printf("Rule %d (%q, priority %d) -> category %d\n", rule.ID, rule.Keyword, rule.Priority, rule.CategoryID)
}

func runCategories(log zerolog.Logger) {
	cmd := newCommand("categories")
	ctx, done, a := cmd.start(log, app.Options{})
	defer done()

	list, err := a.Service.ListCategories(ctx)
	if err != nil {
		a.Log.Fatal().Err(err).Msg("Failed to list categories")
	}
	if cmd.printJSON(list) {
		return
	}
	for _, c := range list {
		fmt.Printf("%-4d %s\n", c.ID, c.Name)
	}
}

func runReview(log zerolog.Logger) {
	cmd := newCommand("review")
	id := cmd.fs.String("anomaly-id", "", "Anomaly ID")
	decision := cmd.fs.String("decision", "", "confirmed or dismissed")
	ctx, done, a := cmd.start(log, app.Options{})
	defer done()

	if *id == "" || *decision == "" {
		a.Log.Fatal().Msg("Error: --anomaly-id and --decision are required")
	}

	an, err := a.Service.ReviewAnomaly(ctx, *id, *decision)
	if err != nil {
		a.Log.Fatal().Err(err).Str("anomaly_id", *id).Msg("Review failed")
	}
	if !cmd.printJSON(an) {
		fmt.Printf("Anomaly %s is now %s\n", an.ID, an.Status)
	}
}

func runOverride(log zerolog.Logger) {
	cmd := newCommand("override")
	txnID := cmd.fs.String("transaction-id", "", "Transaction ID")
	categoryID := cmd.fs.Int64("category", 0, "Category ID")
	ctx, done, a := cmd.start(log, app.Options{})
	defer done()

	t, err := a.Service.OverrideCategory(ctx, *txnID, *categoryID)
	if err != nil {
		a.Log.Fatal().Err(err).Str("transaction_id", *txnID).Msg("Override failed")
	}
	if !cmd.printJSON(t) {
		fmt.Printf("Transaction %s pinned to category %d\n", t.ID, *categoryID)
	}
}

func runSummary(log zerolog.Logger) {
	cmd := newCommand("summary")
	uploadID := cmd.fs.String("upload-id", "", "Upload ID")
	ctx, done, a := cmd.start(log, app.Options{})
	defer done()

	r, err := a.Service.UploadReport(ctx, *uploadID)
	if err != nil {
		a.Log.Fatal().Err(err).Str("upload_id", *uploadID).Msg("Failed to build summary")
	}
	if cmd.printJSON(r.Summary) {
		return
	}
	printSummary(r)
}

func runReport(log zerolog.Logger) {
	cmd := newCommand("report")
	uploadID := cmd.fs.String("upload-id", "", "Upload ID")
	ctx, done, a := cmd.start(log, app.Options{})
	defer done()

	r, err := a.Service.UploadReport(ctx, *uploadID)
	if err != nil {
		a.Log.Fatal().Err(err).Str("upload_id", *uploadID).Msg("Failed to build report")
	}
	*cmd.asJSON = true
	cmd.printJSON(r)
}

func printSummary(r summary.Report) {
	s := r.Summary
	fmt.Println("\n=== Summary ===")
	fmt.Printf("Transactions: %d\n", s.TxnCount)
	fmt.Printf("Income:       %s\n", s.TotalIncome.StringFixed(2))
	fmt.Printf("Expense:      %s\n", s.TotalExpense.StringFixed(2))
	fmt.Printf("Net:          %s\n", s.NetBalance.StringFixed(2))
	fmt.Printf("Open anomalies: %d\n", s.AnomalyCount)

	if len(r.Breakdown) > 0 {
		fmt.Println("\n=== By category ===")
		for _, ct := range r.Breakdown {
			fmt.Printf("  %-20s %s\n", ct.Name, ct.Amount.StringFixed(2))
		}
	}

	var open []domain.Anomaly
	for _, an := range r.Anomalies {
		if an.Status == domain.StatusOpen {
			open = append(open, an)
		}
	}
	if len(open) > 0 {
		fmt.Println("\n=== Anomalies to review ===")
		for _, an := range open {
			fmt.Printf("  [%s] %-18s %s\n    %s\n", an.Severity, an.RuleName, an.ID, an.Detail)
		}
	}
}
