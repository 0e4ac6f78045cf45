package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/xplshn/bright"
	"github.com/xplshn/bright/pkg/ast"
	"github.com/xplshn/bright/pkg/cli"
	"github.com/xplshn/bright/pkg/config"
	"github.com/xplshn/bright/pkg/control"
	"github.com/xplshn/bright/pkg/util"
	"github.com/xplshn/bright/pkg/value"
	"github.com/xplshn/bright/pkg/vm"
)

func main() {
	app := cli.NewApp("bright")
	app.Synopsis = "[options] <script.bright | -e source> [script arguments...]"
	app.Description = "Runs bright scripts: code that reads top to bottom and never blocks its caller."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/bright>"
	app.Since = 2025

	var (
		eval         string
		profile      string
		cleanup      string
		includePaths []string
		dumpTokens   bool
		dumpAST      bool
		printResults bool
		timeout      time.Duration
		awaitTimeout time.Duration
		debug        string
	)

	fs := app.FlagSet
	fs.Interspersed = false
	fs.String(&eval, "eval", "e", "", "Run <source> instead of a script file.", "source")
	fs.String(&profile, "profile", "P", "strict", "Start from a settings profile (strict, loose, legacy).", "profile")
	fs.String(&cleanup, "cleanup", "", "", "How errors from deferred actions combine (keep-first, overwrite, join).", "policy")
	fs.List(&includePaths, "include", "I", []string{}, "Add a directory to the include path.", "path")
	fs.Bool(&dumpTokens, "tokens", "k", false, "Print the classified tokens and exit.")
	fs.Bool(&dumpAST, "dump", "d", false, "Print the parsed program and exit.")
	fs.Bool(&printResults, "print", "p", false, "Print the values the script returns.")
	fs.Duration(&timeout, "timeout", "t", 0, "Cancel the script after <duration>.")
	fs.Duration(&awaitTimeout, "await-timeout", "", 0, "Fail any single await that takes longer than <duration>.")
	fs.String(&debug, "debug", "", "", "Enable debug logging for categories (parse, async, flow, cleanup or all).", "categories")

	cfg := config.NewConfig()
	warningFlags, featureFlags := cfg.SetupFlagGroups(fs)

	app.Action = func(args []string) error {
		log := util.NewLogger(os.Stderr)
		log.EnableFromEnv()
		log.EnableCategories(debug)

		// Profile first, so individual flags refine it
		if err := cfg.ApplyProfile(profile); err != nil {
			return fail(err)
		}
		cfg.ApplyFlagGroups(warningFlags, featureFlags)
		if cleanup != "" {
			policy, err := control.ParsePolicy(cleanup)
			if err != nil {
				return fail(err)
			}
			cfg.Cleanup = policy
		}
		cfg.AwaitTimeout = awaitTimeout
		cfg.IncludePaths = append(cfg.IncludePaths, includePaths...)

		name, source := "<eval>", eval
		if eval == "" {
			if len(args) == 0 {
				return fail(fmt.Errorf("no script specified"))
			}
			name, args = args[0], args[1:]
			content, err := os.ReadFile(name)
			if err != nil {
				return fail(err)
			}
			source = string(content)
		}
		reporter := util.NewReporter(util.NewSource(name, source), os.Stderr)

		if dumpTokens {
			tokens, err := bright.Tokens(source)
			if err != nil {
				reporter.Report(err)
				return err
			}
			for _, t := range tokens {
				fmt.Printf("%d:%d\t%-10s %q\n", t.Line+1, t.Column+1, t.Kind, t.Text)
			}
			return nil
		}

		opts := []bright.Option{bright.WithConfig(cfg), bright.WithLogger(log), bright.WithName(name), bright.WithCache(bright.NewCache())}
		prog, err := bright.Parse(source, opts...)
		if err != nil {
			reporter.Report(err)
			return err
		}
		for _, w := range prog.Warnings {
			reporter.Warn(w.Kind, w.Tok.Line, w.Tok.Column, w.Tok.Len(), "%s", w.Message)
		}
		if dumpAST {
			ast.Dump(os.Stdout, prog)
			return nil
		}

		var unit *vm.Unit
		var unitErr error
		if eval == "" {
			unit, unitErr = bright.CompileFile(name, opts...)
		} else {
			unit, unitErr = bright.Compile(source, opts...)
		}
		if unitErr != nil {
			reporter.Report(unitErr)
			return unitErr
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		scriptArgs := make([]any, len(args))
		for i, a := range args {
			scriptArgs[i] = a
		}
		results, err := unit.Run(ctx, scriptArgs...)
		if err != nil {
			reporter.Report(err)
			return err
		}
		if printResults {
			for _, r := range results {
				fmt.Println(value.Inspect(r))
			}
		}
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

func fail(err error) error {
	fmt.Fprintf(os.Stderr, "bright: %v\n", err)
	return err
}
