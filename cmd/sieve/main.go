// Command sieve records vocabulary exposure, tracks which words a learner
// knows and rates how hard a text will be.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/japaniel/sieve/pkg/config"
	"github.com/japaniel/sieve/pkg/logger"
)

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"lookup":          {"lookup [-source s] [-failed] <word>", cmdLookup},
	"note":            {"note [-sentence s] [-definition d] [-tags t] [-failed] <word>", cmdNote},
	"import":          {"import [-name n] [-date YYYY-MM-DD] <file|url>", cmdImport},
	"import-lookups":  {"import-lookups <vocab.db>", cmdImportLookups},
	"list-contents":   {"list-contents", cmdListContents},
	"delete-content":  {"delete-content <name>", cmdDeleteContent},
	"rebuild":         {"rebuild", cmdRebuild},
	"known":           {"known [-cognates]", cmdKnown},
	"status":          {"status <word>", cmdStatus},
	"mark":            {"mark <word>", cmdMark},
	"reset-overrides": {"reset-overrides", cmdResetOverrides},
	"filter":          {"filter <word>...", cmdFilter},
	"analyze":         {"analyze [-rate r] [-seed n] <file|url>", cmdAnalyze},
	"stats":           {"stats", cmdStats},
	"purge":           {"purge -yes", cmdPurge},
}

var errUsage = errors.New("usage")

func main() {
	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "sieve: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sieve", flag.ContinueOnError)
	configFlag := fs.String("config", "", "Path to a sieve.yaml config file")
	dbFlag := fs.String("db", "", "Path to SQLite database (overrides database.path)")
	langFlag := fs.String("lang", "", "Target language (overrides language.target)")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}
	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fmt.Fprintf(fs.Output(), "unknown command %q\n", fs.Arg(0))
		fs.Usage()
		return errUsage
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		return err
	}
	if *dbFlag != "" {
		cfg.Database.Path = *dbFlag
	}
	if *langFlag != "" {
		cfg.Language.Target = *langFlag
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	reg := prometheus.NewRegistry()
	a, err := newApp(ctx, cfg, log, reg, out)
	if err != nil {
		return err
	}
	defer a.close()

	err = cmd.run(ctx, a, fs.Args()[1:])
	if errors.Is(err, errUsage) {
		if err != errUsage {
			fmt.Fprintln(fs.Output(), err)
		}
		fmt.Fprintf(fs.Output(), "usage: sieve %s\n", cmd.usage)
	}

	if path := cfg.Metrics.Textfile; path != "" {
		if werr := prometheus.WriteToTextfile(path, reg); werr != nil {
			log.Warn("failed to write metrics", zap.String("path", path), zap.Error(werr))
		}
	}
	return err
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintln(w, "usage: sieve [-config file] [-db path] [-lang code] <command> [args]")
	fmt.Fprintln(w, "\ncommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
	fmt.Fprintln(w, "\nflags:")
	fs.PrintDefaults()
}

// subFlags parses args with a command's flag set and requires at least want
// positional arguments.
func subFlags(fs *flag.FlagSet, args []string, want int) ([]string, error) {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() < want {
		return nil, errUsage
	}
	return fs.Args(), nil
}

func joinArgs(args []string) string { return strings.Join(args, " ") }
