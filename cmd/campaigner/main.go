package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/homemade/campaigner/sync"
)

// Env holds process settings. Site settings live in the site's JSON env var
// (SITE_ID, CONFIG_PATH and any values the YAML config expands).
type Env struct {
	SiteID         int    `envconfig:"SITE_ID" required:"true"`
	ConfigDir      string `envconfig:"CONFIG_DIR" default:"config"`
	Database       string `envconfig:"DATABASE" default:"campaigner.db"`
	LogLevel       string `envconfig:"LOG_LEVEL"`
	RecordRequests bool   `envconfig:"RECORD_REQUESTS"`
}

const usage = `usage: campaigner <command> [args]

commands:
  subscribe <member-id>     subscribe a member to every list that applies to them
  unsubscribe <member-id>   remove a member from every list they are subscribed to
  clients                   list Campaign Monitor clients for the API key
  lists                     list the client's mailing lists and custom fields
  fields                    list member fields available for mapping
  docs                      print the configured rules as CSV
  import-lists              store the configured rules for the site
  import-members <file>     store member snapshots from a JSON array
  delete-member <member-id> remove a stored member snapshot
  errors [-n limit]         show the most recent sync errors
  validate-env              check site env vars for conflicts
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	// a missing .env file is not an error
	_ = godotenv.Load()

	if args[0] == "validate-env" {
		if err := sync.ValidateSiteEnvVars(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	var env Env
	if err := envconfig.Process("campaigner", &env); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment: %v\n", err)
		return 1
	}

	files, ok := os.DirFS(env.ConfigDir).(sync.EmbeddedFS)
	if !ok {
		fmt.Fprintf(os.Stderr, "config dir %q cannot be listed\n", env.ConfigDir)
		return 1
	}
	cfg, err := sync.LoadSiteConfigFromEnvironment(
		sync.EmbeddedConfig{Root: ".", Files: files},
		env.SiteID,
		sync.ConfigWithKeyExpander(sync.CampaignMonitorKeyExpander),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load site config: %v\n", err)
		return 1
	}

	level := env.LogLevel
	if level == "" {
		level = cfg.Log.Level
	}
	logger := sync.NewLogger(level)
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("sqlite", env.Database)
	if err != nil {
		logger.Error("failed to open database", zap.String("path", env.Database), zap.Error(err))
		return 1
	}
	defer db.Close()

	store := sync.NewSQLiteStore(db, sync.SQLiteStoreWithLogger(logger))
	if err = store.Migrate(ctx); err != nil {
		logger.Error("failed to migrate database", zap.Error(err))
		return 1
	}
	settings, err := store.Settings(ctx, cfg.SiteID)
	if err != nil {
		logger.Error("failed to load site settings", zap.Error(err))
		return 1
	}
	cfg = cfg.WithSiteSettings(settings)

	connector := sync.NewCampaignMonitorConnector(&sync.SyncContext{
		Config:         cfg,
		Site:           strconv.Itoa(cfg.SiteID),
		RecordRequests: env.RecordRequests,
	})

	a := app{
		cfg:       cfg,
		store:     store,
		connector: connector,
		logger:    logger,
		out:       out,
	}
	if err = a.dispatch(ctx, args[0], args[1:]); err != nil {
		logger.Error("command failed", zap.String("command", args[0]), zap.Error(err))
		return 1
	}
	return 0
}

type app struct {
	cfg       sync.Config
	store     *sync.SQLiteStore
	connector sync.Connector
	logger    *zap.Logger
	out       io.Writer
}

func (a app) dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "subscribe", "unsubscribe":
		return a.synchronize(ctx, command, args)
	case "clients":
		return a.clients(ctx)
	case "lists":
		return a.lists(ctx)
	case "fields":
		return a.fields(ctx)
	case "docs":
		return a.docs()
	case "import-lists":
		return a.importLists(ctx)
	case "import-members":
		return a.importMembers(ctx, args)
	case "delete-member":
		return a.deleteMember(ctx, args)
	case "errors":
		return a.errors(ctx, args)
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

func (a app) synchronize(ctx context.Context, command string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%s takes exactly one member id", command)
	}
	memberID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid member id %q %w", args[0], err)
	}

	reporter := sync.MultiErrorReporter{sync.ZapErrorReporter{Logger: a.logger}, a.store}
	synchronizer := sync.NewSynchronizer(a.cfg.SiteID, a.store, a.connector, reporter, sync.SynchronizerWithLogger(a.logger))

	var result sync.Result
	if command == "subscribe" {
		result = synchronizer.Subscribe(ctx, memberID)
	} else {
		result = synchronizer.Unsubscribe(ctx, memberID)
	}
	for _, o := range result.Outcomes {
		status := "ok"
		if !o.Succeeded {
			status = fmt.Sprintf("failed (%d %s)", o.Code, o.Message)
		}
		fmt.Fprintf(a.out, "%s\t%s\n", o.ListID, status)
	}
	return result.Err
}

func (a app) clients(ctx context.Context) error {
	clients, err := a.connector.Clients(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CLIENT ID\tNAME")
	for _, c := range clients {
		fmt.Fprintf(w, "%s\t%s\n", c.ClientID, c.Name)
	}
	return w.Flush()
}

func (a app) lists(ctx context.Context) error {
	if a.cfg.API.ClientID == "" {
		return fmt.Errorf("api.clientId is not configured")
	}
	lists, err := sync.FetchMailingListsWithFields(ctx, a.connector, a.cfg.API.ClientID)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LIST ID\tNAME\tCUSTOM FIELD\tTYPE")
	for _, l := range lists {
		fmt.Fprintf(w, "%s\t%s\t\t\n", l.ListID, l.Name)
		for _, f := range l.CustomFields {
			fmt.Fprintf(w, "\t\t%s\t%s\n", f.Key, f.DataType)
		}
	}
	return w.Flush()
}

func (a app) fields(ctx context.Context) error {
	fields, err := a.store.MemberFields(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD\tLABEL\tTYPE")
	for _, f := range fields {
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.ID, f.Label, f.Type)
	}
	return w.Flush()
}

func (a app) docs() error {
	label := strconv.Itoa(a.cfg.SiteID)
	_, configPath, err := sync.FindSiteEnvVar(label)
	if err != nil {
		return err
	}
	if configPath != "" {
		label = sync.SiteLabel(configPath)
	}
	doc := sync.GenerateListDocumentation(a.cfg.MailingLists, label)
	csv, err := doc.FormatCSV()
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(a.out, csv)
	return err
}

// importLists stores the configured rules, keeping only lists and custom
// fields that still exist for the configured client.
func (a app) importLists(ctx context.Context) error {
	rules := a.cfg.MailingLists
	if a.cfg.API.ClientID != "" {
		remote, err := sync.FetchMailingListsWithFields(ctx, a.connector, a.cfg.API.ClientID)
		if err != nil {
			return err
		}
		resolved := sync.ResolveMailingLists(rules, remote)
		if dropped := len(rules) - len(resolved); dropped > 0 {
			a.logger.Warn("configured lists not found for client", zap.Int("dropped", dropped))
		}
		rules = resolved
	}
	err := a.store.SaveSettings(ctx, sync.SiteSettings{
		SiteID:   a.cfg.SiteID,
		APIKey:   a.cfg.API.Key,
		ClientID: a.cfg.API.ClientID,
	})
	if err != nil {
		return err
	}
	if err = a.store.SaveMailingLists(ctx, a.cfg.SiteID, rules); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "imported %d mailing lists for site %d\n", len(rules), a.cfg.SiteID)
	return nil
}

func (a app) importMembers(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("import-members takes exactly one file")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	members, err := sync.ParseMembers(string(data))
	if err != nil {
		return fmt.Errorf("failed to read members from %s %w", args[0], err)
	}
	if err = a.store.SaveMembers(ctx, members); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "imported %d members\n", len(members))
	return nil
}

func (a app) deleteMember(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("delete-member takes exactly one member id")
	}
	memberID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid member id %q %w", args[0], err)
	}
	return a.store.DeleteMember(ctx, memberID)
}

func (a app) errors(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("errors", flag.ContinueOnError)
	limit := fs.Int("n", 50, "number of entries to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	entries, err := a.store.ErrorLog(ctx, a.cfg.SiteID, *limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tCONTEXT\tCODE\tMEMBER\tLIST\tMESSAGE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Context, e.Code, e.MemberID, e.ListID, e.Message)
	}
	return w.Flush()
}
