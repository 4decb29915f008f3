package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/markqiu/openbb-tushare/internal/app"
	"github.com/markqiu/openbb-tushare/internal/config"
	"github.com/markqiu/openbb-tushare/internal/domain"
	"github.com/markqiu/openbb-tushare/internal/provider"
	"github.com/markqiu/openbb-tushare/internal/refresh"
	"github.com/markqiu/openbb-tushare/pkg/tsclient"
)

const version = "0.1.0"

func main() {
	server := flag.String("server", "", "tushare-server base URL; models and fetch go through it instead of running locally")
	apiKey := flag.String("api-key", "", "Tushare token (default: tushare.api_key from config)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tushare-cli [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version                     Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  models                      List available models\n")
		fmt.Fprintf(os.Stderr, "  fetch <model> [key=value]   Run a model and print its records\n")
		fmt.Fprintf(os.Stderr, "  cache tables                List cached tables\n")
		fmt.Fprintf(os.Stderr, "  cache read <table>          Print a cached table\n")
		fmt.Fprintf(os.Stderr, "  cache clear <table>         Empty a cached table\n")
		fmt.Fprintf(os.Stderr, "  cache refresh               Reload every reference table from Tushare\n")
		fmt.Fprintf(os.Stderr, "  archive [period]            List symbols with archived bars\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch args[0] {
	case "version":
		fmt.Printf("tushare-cli %s\n", version)
	case "models":
		err = listModels(ctx, *server, *apiKey)
	case "fetch":
		if len(args) < 2 {
			err = errors.New("fetch: missing model name")
			break
		}
		err = fetch(ctx, *server, *apiKey, args[1], args[2:])
	case "cache":
		err = cacheCommand(ctx, *apiKey, args[1:])
	case "archive":
		err = listArchive(ctx, *apiKey, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func openApp(apiKey string) (*app.App, error) {
	cfg, err := loadConfig(apiKey)
	if err != nil {
		return nil, err
	}
	return app.Open(cfg, nil)
}

// loadConfig reads the config file. A non-empty apiKey replaces the
// configured token.
func loadConfig(apiKey string) (*config.Config, error) {
	cfg, err := config.Load(config.Path("config/tushare.yaml"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if apiKey != "" {
		cfg.Tushare.APIKey = apiKey
	}
	// Only errors reach stdout, which carries the command output.
	if cfg.Logging.File == "" {
		cfg.Logging.Level = "error"
	}
	return cfg, nil
}

func listModels(ctx context.Context, server, apiKey string) error {
	if server != "" {
		models, err := tsclient.NewClient(server).Models(ctx)
		if err != nil {
			return err
		}
		for _, m := range models {
			fmt.Printf("%-22s %s\n", m.Name, m.Description)
		}
		return nil
	}

	a, err := openApp(apiKey)
	if err != nil {
		return err
	}
	defer a.Close()
	reg := a.Models.Registry()
	for _, name := range reg.Names() {
		e, _ := reg.Get(name)
		fmt.Printf("%-22s %s\n", name, e.Description())
	}
	return nil
}

func fetch(ctx context.Context, server, apiKey, model string, pairs []string) error {
	params, err := parsePairs(pairs)
	if err != nil {
		return err
	}

	if server != "" {
		strParams := make(map[string]string, len(params))
		for k, v := range params {
			strParams[k] = v.(string)
		}
		rows, err := tsclient.NewClient(server, tsclient.WithAPIKey(apiKey)).Fetch(ctx, model, strParams)
		if err != nil {
			return err
		}
		return printJSON(rows)
	}

	a, err := openApp(apiKey)
	if err != nil {
		return err
	}
	defer a.Close()

	e, ok := a.Models.Registry().Get(model)
	if !ok {
		return fmt.Errorf("unknown model: %s", model)
	}
	creds := provider.Credentials{}
	if apiKey != "" {
		creds[provider.CredentialAPIKey] = apiKey
	}
	records, err := e.Fetch(ctx, params, creds)
	if err != nil {
		return err
	}
	return printJSON(records)
}

func cacheCommand(ctx context.Context, apiKey string, args []string) error {
	if len(args) == 0 {
		return errors.New("cache: expected tables, read, clear or refresh")
	}

	a, err := openApp(apiKey)
	if err != nil {
		return err
	}
	defer a.Close()

	switch args[0] {
	case "tables":
		names, err := a.Cache.Tables(ctx)
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	case "read", "clear":
		if len(args) < 2 {
			return fmt.Errorf("cache %s: missing table name", args[0])
		}
		if args[0] == "clear" {
			if err := a.Cache.Clear(ctx, args[1]); err != nil {
				return err
			}
			fmt.Printf("cleared %s\n", args[1])
			return nil
		}
		rows, err := a.Cache.Read(ctx, args[1])
		if err != nil {
			return err
		}
		return printJSON(rows)
	case "refresh":
		if a.Config.Tushare.APIKey == "" {
			return errors.New("cache refresh: -api-key, tushare.api_key or TUSHARE_API_KEY is required")
		}
		r := refresh.New(a.Log, a.Metrics)
		for _, d := range a.Models.Datasets() {
			if err := r.Register(d); err != nil {
				return err
			}
		}
		return r.RunOnce(ctx)
	default:
		return fmt.Errorf("cache: unknown subcommand %q", args[0])
	}
}

func listArchive(ctx context.Context, apiKey string, args []string) error {
	period := domain.PeriodDaily
	if len(args) > 0 {
		period = domain.Period(args[0])
	}
	if !period.Valid() {
		return fmt.Errorf("archive: unknown period %q", period)
	}

	a, err := openApp(apiKey)
	if err != nil {
		return err
	}
	defer a.Close()

	syms, err := a.Bars.ListSymbols(ctx, period)
	if err != nil {
		return err
	}
	for _, s := range syms {
		fmt.Println(s)
	}
	return nil
}

// parsePairs turns key=value arguments into params.
func parsePairs(pairs []string) (provider.Params, error) {
	params := provider.Params{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("argument %q is not key=value", p)
		}
		params[k] = v
	}
	return params, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
