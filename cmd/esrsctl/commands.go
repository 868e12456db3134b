package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/saranrapjs/esrs-ixbrl/pkg/backend"
	"github.com/saranrapjs/esrs-ixbrl/pkg/conceptsearch"
	"github.com/saranrapjs/esrs-ixbrl/pkg/config"
	"github.com/saranrapjs/esrs-ixbrl/pkg/db"
	"github.com/saranrapjs/esrs-ixbrl/pkg/export"
	"github.com/saranrapjs/esrs-ixbrl/pkg/facts"
	"github.com/saranrapjs/esrs-ixbrl/pkg/ixbrl"
	"github.com/saranrapjs/esrs-ixbrl/pkg/logger"
	"github.com/saranrapjs/esrs-ixbrl/pkg/report"
	"github.com/saranrapjs/esrs-ixbrl/pkg/setup"
	"github.com/saranrapjs/esrs-ixbrl/pkg/taxonomy"
	"github.com/saranrapjs/esrs-ixbrl/pkg/validate"
)

// errInvalid is returned by validate when the document has errors, so that
// the process exits non-zero after the report is printed.
var errInvalid = errors.New("document is not valid")

// cacheMaxAge is how long a pulled report is served from the cache.
const cacheMaxAge = 24 * time.Hour

type options struct {
	configPath   string
	taxonomyPath string
	debug        bool
}

func (o *options) config() (*config.Config, error) {
	var cfg *config.Config
	if o.configPath == "" {
		cfg = config.Default()
		if err := config.ApplyEnv(cfg); err != nil {
			return nil, err
		}
	} else {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}
	if o.taxonomyPath != "" {
		cfg.Taxonomy.Path = o.taxonomyPath
	}
	cfg.Taxonomy.Watch = false
	return cfg, nil
}

func (o *options) logger(cfg *config.Config) (*zap.Logger, error) {
	if !o.debug && !cfg.Debug {
		return zap.NewNop(), nil
	}
	return logger.New(true)
}

func (o *options) taxonomy(ctx context.Context) (*taxonomy.Index, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	log, err := o.logger(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Taxonomy.Path == "" && cfg.Taxonomy.ArchiveURL == "" {
		return nil, errors.New("no taxonomy configured: pass --taxonomy or set taxonomy.path")
	}
	store, err := setup.Taxonomy(ctx, cfg.Taxonomy, log)
	if err != nil {
		return nil, err
	}
	return store.Index(), nil
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "esrsctl",
		Short:         "Work with ESRS taxonomies and inline XBRL reports",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file path")
	root.PersistentFlags().StringVar(&opts.taxonomyPath, "taxonomy", "", "taxonomy JSON file (overrides the config)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(generateCmd(opts))
	root.AddCommand(exportCmd(opts))
	root.AddCommand(validateCmd())
	root.AddCommand(searchCmd(opts))
	root.AddCommand(pathCmd(opts))
	root.AddCommand(pullCmd(opts))
	root.AddCommand(sampleCmd())
	return root
}

func readReport(path string) (*report.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var doc report.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &doc, nil
}

// output opens path for writing, or returns w when path is empty or "-".
func output(w io.Writer, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return w, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output: %w", err)
	}
	return f, f.Close, nil
}

func generateCmd(opts *options) *cobra.Command {
	var (
		out          string
		minimalUnits bool
		tooltips     bool
	)
	cmd := &cobra.Command{
		Use:   "generate [report.json]",
		Short: "Render a tagged report as inline XBRL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			doc, err := readReport(args[0])
			if err != nil {
				return err
			}
			readiness := report.Check(doc)
			for _, msg := range readiness.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", msg)
			}
			for _, msg := range readiness.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", msg)
			}

			cfg.Generator.MinimalUnits = cfg.Generator.MinimalUnits || minimalUnits
			cfg.Generator.Tooltips = cfg.Generator.Tooltips || tooltips
			content, err := setup.Generator(cfg.Generator).Generate(doc)
			if err != nil {
				return err
			}

			if out == "" {
				out = ixbrl.FileName(doc.Title)
			}
			w, closeFn, err := output(cmd.OutOrStdout(), out)
			if err != nil {
				return err
			}
			if _, err := w.Write(content); err != nil {
				closeFn()
				return err
			}
			if err := closeFn(); err != nil {
				return err
			}
			if out != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d facts to %s\n", ixbrl.FactCount(doc), out)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", `output file ("-" for stdout, default derived from the title)`)
	cmd.Flags().BoolVar(&minimalUnits, "minimal-units", false, "declare only the units the report uses")
	cmd.Flags().BoolVar(&tooltips, "tooltips", false, "add concept tooltips to tagged facts")
	return cmd
}

func exportCmd(opts *options) *cobra.Command {
	var (
		out    string
		format string
	)
	cmd := &cobra.Command{
		Use:   "export [report.json]",
		Short: "Export the facts of a tagged report as JSON or a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			doc, err := readReport(args[0])
			if err != nil {
				return err
			}
			content, err := setup.Generator(cfg.Generator).Generate(doc)
			if err != nil {
				return err
			}
			f, err := facts.FromIXBRL(bytes.NewReader(content))
			if err != nil {
				return err
			}
			w, closeFn, err := output(cmd.OutOrStdout(), out)
			if err != nil {
				return err
			}
			switch format {
			case "json":
				entity := ""
				for _, t := range doc.Tags() {
					if t.Context.EntityName != "" {
						entity = t.Context.EntityName
						break
					}
				}
				err = export.JSON(w, f, export.InfoFor(f, entity))
			case "xlsx":
				err = export.Workbook(w, f)
			default:
				err = fmt.Errorf("unknown format %q", format)
			}
			if cerr := closeFn(); err == nil {
				err = cerr
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "json or xlsx")
	return cmd
}

func validateCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Check an XBRL or inline XBRL document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			res, err := validate.Reader(f)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				printResult(w, filepath.Base(args[0]), res)
			}
			if !res.IsValid {
				return errInvalid
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func printResult(w io.Writer, name string, res *validate.Result) {
	status := "VALID"
	if !res.IsValid {
		status = "INVALID"
	}
	fmt.Fprintf(w, "%s: %s (%d facts, %d contexts, %d units, %s)\n",
		name, status, res.Stats.TotalFacts, res.Stats.Contexts, res.Stats.Units, res.Stats.FileSize)
	for _, group := range [][]validate.Issue{res.Errors, res.Warnings, res.Info} {
		for _, is := range group {
			fmt.Fprintf(w, "  %-7s %s line %d: %s\n", is.Severity, is.Code, is.Line, is.Message)
		}
	}
}

func searchCmd(opts *options) *cobra.Command {
	var (
		limit  int
		ranked bool
		fuzzy  bool
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search taxonomy concepts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("invalid limit %d", limit)
			}
			query := strings.Join(args, " ")
			idx, err := opts.taxonomy(cmd.Context())
			if err != nil {
				return err
			}
			var nodes []*taxonomy.Node
			if ranked || fuzzy {
				search, err := conceptsearch.New(idx)
				if err != nil {
					return err
				}
				defer search.Close()
				nodes, err = search.Nodes(query, conceptsearch.Options{Limit: limit, Fuzzy: fuzzy})
				if err != nil {
					return err
				}
			} else {
				nodes = idx.Search(query)
				if len(nodes) > limit {
					nodes = nodes[:limit]
				}
			}
			if len(nodes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matching concepts.")
				return nil
			}
			for _, n := range nodes {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", n.ID, n.Label)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", conceptsearch.DefaultLimit, "maximum number of results")
	cmd.Flags().BoolVar(&ranked, "ranked", false, "rank results by relevance")
	cmd.Flags().BoolVar(&fuzzy, "fuzzy", false, "tolerate misspellings (implies --ranked)")
	return cmd
}

func pathCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "path [concept-id]",
		Short: "Show where a concept sits in the taxonomy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := opts.taxonomy(cmd.Context())
			if err != nil {
				return err
			}
			path, ok := idx.PathLabels(args[0])
			if !ok {
				return fmt.Errorf("concept %s not found", args[0])
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, strings.Join(path, " > "))
			node, _ := idx.FindByID(args[0])
			for _, c := range idx.CalculationChildren(node) {
				fmt.Fprintf(w, "  + %s\t%s\n", c.ID, c.Label)
			}
			return nil
		},
	}
}

func pullCmd(opts *options) *cobra.Command {
	var (
		out   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "pull [report-id]",
		Short: "Fetch a report from the backend into the local cache",
		Long: "Fetch a report from the backend into the local cache. Credentials come from " +
			"ESRS_EMAIL and ESRS_PASSWORD, or ESRS_ACCESS_TOKEN and ESRS_REFRESH_TOKEN.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			log, err := opts.logger(cfg)
			if err != nil {
				return err
			}
			database, err := db.New(cfg.Storage.DatabasePath)
			if err != nil {
				return err
			}
			defer database.Close()

			id := args[0]
			doc, err := pullReport(cmd.Context(), cfg, database, log, id, force)
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d tags\n", doc.ID, doc.Title, len(doc.Tags()))
				return nil
			}
			w, closeFn, err := output(cmd.OutOrStdout(), out)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			err = enc.Encode(doc)
			if cerr := closeFn(); err == nil {
				err = cerr
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", `write the report JSON to a file ("-" for stdout)`)
	cmd.Flags().BoolVar(&force, "force", false, "fetch even when the cached copy is fresh")
	return cmd
}

// pullReport serves the report from the cache while it is fresh and fetches
// it from the backend otherwise. Tags of the cached copy are carried over to
// the fetched blocks with the same id.
func pullReport(ctx context.Context, cfg *config.Config, database *db.DB, log *zap.Logger, id string, force bool) (*report.Document, error) {
	if !force {
		stale, err := database.IsReportStale(id, cacheMaxAge)
		if err != nil {
			log.Warn("checking report staleness failed", zap.String("id", id), zap.Error(err))
			stale = true
		}
		if !stale {
			doc, err := database.GetReport(id)
			if err == nil {
				log.Debug("serving cached report", zap.String("id", id))
				return doc, nil
			}
			log.Warn("reading cached report failed", zap.String("id", id), zap.Error(err))
		}
	}

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.RateLimit,
		backend.WithLogger(log),
		backend.WithTokens(os.Getenv("ESRS_ACCESS_TOKEN"), os.Getenv("ESRS_REFRESH_TOKEN")))
	if email := os.Getenv("ESRS_EMAIL"); email != "" {
		if err := client.Login(ctx, email, os.Getenv("ESRS_PASSWORD")); err != nil {
			return nil, err
		}
	}
	doc, err := client.Report(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("backend returned report %s: %w", id, err)
	}
	if cached, err := database.GetReport(id); err == nil {
		kept, dropped := doc.CarryTags(cached)
		if kept > 0 || dropped > 0 {
			log.Info("carried cached tags", zap.String("id", id), zap.Int("kept", kept), zap.Int("dropped", dropped))
		}
	} else if !errors.Is(err, db.ErrNotFound) {
		log.Warn("reading cached report failed", zap.String("id", id), zap.Error(err))
	}
	if err := database.StoreReport(doc); err != nil {
		log.Warn("caching report failed", zap.String("id", id), zap.Error(err))
	}
	return doc, nil
}

func sampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sample",
		Short: "Print the demo report as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report.SampleReport())
		},
	}
}
