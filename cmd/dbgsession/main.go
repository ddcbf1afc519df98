// Command dbgsession is a terminal-free driver for the debugger session
// front-end: it wires a Session to either a real DAP adapter or the
// in-memory demo engine and drives run/step/continue from flags, printing
// target events and debuggee output to stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dshills/dbgsession/config"
	"github.com/dshills/dbgsession/engine/dapengine"
	"github.com/dshills/dbgsession/engine/dapengine/adapters"
	"github.com/dshills/dbgsession/engine/memengine"
	"github.com/dshills/dbgsession/session"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

type options struct {
	configPath string
	program    string
	demo       bool
	attachPID  string
	breakLine  int
	breakFile  string
}

func run() int {
	opts := parseFlags()

	sess, cleanup, err := buildSession(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer cleanup()

	sess.SubscribeAll(func(evt session.TargetEvent) {
		fmt.Printf("event: %s\n", evt.Kind)
	})

	if opts.breakFile != "" {
		store := session.NewInMemoryStore()
		store.Add(session.NewBreakpoint(opts.breakFile, opts.breakLine))
		if err := sess.BindStore(store); err != nil {
			fmt.Fprintf(os.Stderr, "Error: bind store: %v\n", err)
			return 1
		}
	}

	if opts.demo {
		return runDemo(sess)
	}
	return runAdapter(sess, opts)
}

// runDemo drives the in-memory engine synchronously: memengine has no
// async callback goroutine of its own, so there is no target_exited to
// wait on — each command's effect is visible the moment the call returns.
func runDemo(sess *session.Session) int {
	ctx := context.Background()
	if err := sess.Run(ctx, &session.StartInfo{Command: "demo"}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	sess.NotifyTargetEvent(session.TargetEvent{Kind: session.TargetStopped})

	for i := 0; i < 3; i++ {
		if err := sess.StepLine(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: step: %v\n", err)
			return 1
		}
		sess.NotifyTargetEvent(session.TargetEvent{Kind: session.TargetStopped})
		threads, err := sess.GetThreads("0")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: get threads: %v\n", err)
			return 1
		}
		for _, th := range threads {
			fmt.Printf("%s:%d  %s\n", th.SourceFile, th.SourceLine, th.FunctionStack)
		}
	}
	return 0
}

// runAdapter drives a real DAP adapter, waiting for the engine's own
// TargetExited notification since execution there is genuinely async.
func runAdapter(sess *session.Session, opts options) int {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		_ = sess.Exit(context.Background())
	}()

	exited := make(chan struct{})
	var closeOnce sync.Once
	sess.Subscribe(session.TargetExited, func(session.TargetEvent) {
		closeOnce.Do(func() { close(exited) })
	})

	ctx := context.Background()
	var err error
	if opts.attachPID != "" {
		err = sess.Attach(ctx, opts.attachPID)
	} else {
		err = sess.Run(ctx, &session.StartInfo{Command: opts.program})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	select {
	case <-exited:
	case <-time.After(30 * time.Second):
		fmt.Fprintln(os.Stderr, "Error: timed out waiting for the debuggee to exit")
		return 1
	}
	return 0
}

// buildSession constructs a Session over either the demo in-memory engine
// or a real DAP adapter, returning a cleanup func that disposes it.
func buildSession(opts options) (*session.Session, func(), error) {
	if opts.demo {
		eng := memengine.New(demoProgram(), true)
		sessOpts := session.DefaultSessionOptions()
		sessOpts.UseOperationThread = false
		sess, err := session.NewSession(eng, sessOpts)
		if err != nil {
			return nil, nil, err
		}
		return sess, func() { sess.Dispose() }, nil
	}

	doc, err := loadDocument(opts)
	if err != nil {
		return nil, nil, err
	}
	if len(doc.Adapters) == 0 {
		return nil, nil, errors.New("no adapter configured: pass -config or -demo")
	}

	registry := adapters.NewRegistry()
	adapterCfg := doc.Adapters[0]
	if opts.program != "" {
		adapterCfg.Program = opts.program
	}
	adapter, err := registry.Create(adapterCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create adapter: %w", err)
	}
	if err := adapter.Validate(); err != nil {
		return nil, nil, fmt.Errorf("validate adapter config: %w", err)
	}

	eng := dapengine.New(adapter)
	sess, err := session.NewSession(eng, doc.Session)
	if err != nil {
		return nil, nil, err
	}
	eng.Bind(sess)
	return sess, func() { sess.Dispose() }, nil
}

func loadDocument(opts options) (config.Document, error) {
	if opts.configPath == "" {
		return config.Document{Session: session.DefaultSessionOptions()}, nil
	}
	return config.LoadDocument(opts.configPath)
}

// demoProgram is the scripted listing the in-memory engine steps through
// when run with -demo.
func demoProgram() memengine.Program {
	return memengine.Program{
		File: "demo.go",
		Lines: []memengine.Line{
			{Text: "x := 1", Variables: map[string]string{"x": "1"}},
			{Text: "y := x + 1", Variables: map[string]string{"x": "1", "y": "2"}},
			{Text: "fmt.Println(y)", Variables: map[string]string{"x": "1", "y": "2"}},
		},
	}
}

func parseFlags() options {
	var opts options

	flag.StringVar(&opts.configPath, "config", "", "Path to a TOML session/adapter configuration file")
	flag.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.program, "program", "", "Program to launch (overrides the config file's adapter program)")
	flag.BoolVar(&opts.demo, "demo", false, "Run the in-memory demo engine instead of a real adapter")
	flag.StringVar(&opts.attachPID, "attach", "", "Process id to attach to instead of launching")
	flag.StringVar(&opts.breakFile, "break-file", "", "Source file for an initial breakpoint")
	flag.IntVar(&opts.breakLine, "break-line", 0, "Line for an initial breakpoint (requires -break-file)")

	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "dbgsession - debugger session front-end demo driver\n\n")
		fmt.Fprintf(os.Stderr, "Usage: dbgsession [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  dbgsession -demo                          Run the scripted in-memory engine\n")
		fmt.Fprintf(os.Stderr, "  dbgsession -config session.toml           Launch the configured adapter\n")
		fmt.Fprintf(os.Stderr, "  dbgsession -config session.toml -attach 1234\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("dbgsession %s (%s)\n", version, commit)
		os.Exit(0)
	}

	return opts
}
