// Package main is boxtool, a command line client for box files: it
// previews and receives boxes into the local database and composes
// ballot and file boxes for sending.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ZentaChain/zentalk-client/pkg/config"
	"github.com/ZentaChain/zentalk-client/pkg/logger"
	"github.com/ZentaChain/zentalk-client/pkg/storage"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

var commands = []command{
	{"preview", "show notification previews of box files", runPreview},
	{"receive", "decode box files into the local database", runReceive},
	{"contact", "add, block or unblock a contact (contact add|block|unblock ID [NICKNAME])", runContact},
	{"group", "register a group conversation (group add CREATOR GROUP_ID)", runGroup},
	{"ballots", "list the ballots of a conversation", runBallots},
	{"files", "list the files of a conversation", runFiles},
	{"ballot", "compose a ballot create box", runBallotCreate},
	{"send-file", "encrypt and upload a file, then compose its box", runSendFile},
}

// env carries the loaded config and lazily opened resources
type env struct {
	cfg *config.Config
	log *slog.Logger
	db  *storage.DB
}

func (e *env) openDB() (*storage.DB, error) {
	if e.db != nil {
		return e.db, nil
	}
	if err := os.MkdirAll(e.cfg.DataDir, 0o700); err != nil {
		return nil, err
	}
	db, err := storage.Open(e.cfg.DBPath(), e.cfg.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	e.db = db
	return db, nil
}

func (e *env) close() {
	if e.db != nil {
		e.db.Close()
	}
}

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("boxtool", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	configPath := flagSet.String("config", "", "YAML config file")
	envFile := flagSet.String("env-file", ".env", "dotenv file with ZENTALK_* variables")
	flags := config.BindFlags(flagSet)
	flagSet.Usage = func() { printUsage(flagSet) }

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	args := flagSet.Args()
	if len(args) == 0 {
		printUsage(flagSet)
		return errors.New("missing command")
	}

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		return err
	}
	flags.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	e := &env{cfg: cfg, log: logger.NewLogger(cfg.LogLevel)}
	defer e.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, c := range commands {
		if c.name == args[0] {
			return c.run(ctx, e, args[1:])
		}
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func printUsage(flagSet *pflag.FlagSet) {
	fmt.Fprintln(os.Stderr, "usage: boxtool [flags] COMMAND [args]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "commands:")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "flags:")
	fmt.Fprint(os.Stderr, flagSet.FlagUsages())
}
