// ABOUTME: CLI entrypoint wiring compiler, token manager, event bus, store and engine
// ABOUTME: together: the composition root for running one diagram to completion.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/template"
	"time"

	"github.com/dipeo/dipeo-engine/compiler"
	"github.com/dipeo/dipeo-engine/domain"
	"github.com/dipeo/dipeo-engine/engine"
	"github.com/dipeo/dipeo-engine/eventbus"
	"github.com/dipeo/dipeo-engine/handler"
	"github.com/dipeo/dipeo-engine/ports"
	"github.com/dipeo/dipeo-engine/resolve"
	"github.com/dipeo/dipeo-engine/store"
	"github.com/dipeo/dipeo-engine/testdiagram"
)

var version = "dev"

// config holds all CLI configuration, from DIPEO_* environment variables
// (optionally seeded by a .env file) with command-line flags taking
// precedence.
type config struct {
	diagramFile    string
	retryPolicy    string
	storeKind      string // "sqlite", "jsonl", or "" (none)
	storePath      string
	checkpointDir  string
	transcriptPath string
	concurrency    int
	verbose        bool
	showVersion    bool
}

func main() {
	if err := loadDotEnv(".env"); err != nil {
		log.Printf("component=cli action=dotenv_load_failed err=%v", err)
	}

	cfg := parseFlags()

	if cfg.showVersion {
		fmt.Printf("dipeoengine %s\n", version)
		os.Exit(0)
	}

	os.Exit(run(cfg))
}

// parseFlags parses command-line flags, defaulting each from its DIPEO_*
// environment variable, and returns a populated config.
func parseFlags() config {
	var cfg config

	fs := flag.NewFlagSet("dipeoengine", flag.ContinueOnError)
	fs.StringVar(&cfg.retryPolicy, "retry", envOrDefault("DIPEO_RETRY", "standard"), "Default retry policy: none, standard")
	fs.StringVar(&cfg.storeKind, "store", envOrDefault("DIPEO_STORE", ""), "Event store backend: sqlite, jsonl, or empty for none")
	fs.StringVar(&cfg.storePath, "store-path", envOrDefault("DIPEO_STORE_PATH", ""), "Path to the event store file")
	fs.StringVar(&cfg.checkpointDir, "checkpoint-dir", envOrDefault("DIPEO_CHECKPOINT_DIR", ""), "Directory for execution checkpoint snapshots")
	fs.StringVar(&cfg.transcriptPath, "transcript", envOrDefault("DIPEO_TRANSCRIPT", ""), "Write a run transcript to this path (.html renders HTML)")
	fs.IntVar(&cfg.concurrency, "concurrency", envIntOrDefault("DIPEO_CONCURRENCY", 4), "Max in-flight node handler dispatches")
	fs.BoolVar(&cfg.verbose, "verbose", false, "Log execution and node lifecycle events as they happen")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	fs.Usage = func() {
		printHelp(os.Stderr, version)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if fs.NArg() > 0 {
		cfg.diagramFile = fs.Arg(0)
	}

	return cfg
}

func printHelp(w *os.File, v string) {
	fmt.Fprintf(w, "dipeoengine %s - run a compiled diagram to completion\n\n", v)
	fmt.Fprintf(w, "usage: dipeoengine [flags] <diagram.yaml>\n\n")
	fmt.Fprintf(w, "flags (each defaults from its DIPEO_* env var, .env is loaded first):\n")
	fmt.Fprintf(w, "  -retry string          none|standard (default standard, DIPEO_RETRY)\n")
	fmt.Fprintf(w, "  -store string          sqlite|jsonl (default none, DIPEO_STORE)\n")
	fmt.Fprintf(w, "  -store-path string     path for the event store (DIPEO_STORE_PATH)\n")
	fmt.Fprintf(w, "  -checkpoint-dir string directory for checkpoint snapshots (DIPEO_CHECKPOINT_DIR)\n")
	fmt.Fprintf(w, "  -transcript string     write a run transcript here (DIPEO_TRANSCRIPT)\n")
	fmt.Fprintf(w, "  -concurrency int       max in-flight dispatches (default 4, DIPEO_CONCURRENCY)\n")
	fmt.Fprintf(w, "  -verbose               log execution and node lifecycle events\n")
	fmt.Fprintf(w, "  -version               print version and exit\n")
}

// run dispatches to the compile-and-execute path. Returns an exit code: 0
// for success, 1 for failure.
func run(cfg config) int {
	if cfg.diagramFile == "" {
		printHelp(os.Stderr, version)
		return 0
	}

	raw, err := os.ReadFile(cfg.diagramFile)
	if err != nil {
		log.Printf("component=cli action=read_diagram_failed file=%s err=%v", cfg.diagramFile, err)
		return 1
	}

	dd, err := testdiagram.LoadYAML(raw)
	if err != nil {
		log.Printf("component=cli action=parse_diagram_failed file=%s err=%v", cfg.diagramFile, err)
		return 1
	}

	diag, result := compiler.Compile(dd)
	for _, d := range result.Diagnostics {
		log.Printf("component=compiler action=diagnostic severity=%s phase=%s rule=%s msg=%q", d.Severity, d.Phase, d.Rule, d.Message)
	}
	if !result.Valid {
		log.Printf("component=compiler action=compile_failed file=%s errors=%d", cfg.diagramFile, len(result.Errors()))
		return 1
	}

	bus := eventbus.NewBus(0)
	router := eventbus.NewRouter(bus, 0)
	if cfg.verbose {
		go logEvents(router.SubscribeWildcard("cli:verbose"))
	}

	var sink *eventbus.LogSink
	var sinkDone chan struct{}
	if cfg.transcriptPath != "" {
		title := dd.Metadata.Name
		if title == "" {
			title = cfg.diagramFile
		}
		sink = eventbus.NewLogSink(title)
		sinkDone = make(chan struct{})
		go func(events <-chan eventbus.Event) {
			defer close(sinkDone)
			for ev := range events {
				sink.Record(ev)
			}
		}(router.SubscribeWildcard("cli:transcript"))
	}

	msgStore, closeStore, err := openStore(cfg)
	if err != nil {
		log.Printf("component=cli action=open_store_failed kind=%s err=%v", cfg.storeKind, err)
		return 1
	}
	if msgStore != nil {
		defer closeStore()
		go persistEvents(msgStore, router.SubscribeWildcard("cli:store"))
	}

	var checkpoints *engine.CheckpointStore
	if cfg.checkpointDir != "" {
		checkpoints, err = engine.NewCheckpointStore(cfg.checkpointDir)
		if err != nil {
			log.Printf("component=cli action=checkpoint_dir_failed dir=%s err=%v", cfg.checkpointDir, err)
		}
	}

	registry := resolve.NewRegistry()
	registry.Freeze()

	handlers := handler.NewRegistry()
	handlers.Register(handler.StartHandler{})
	handlers.Register(handler.EndpointHandler{})
	handlers.Register(handler.CodeJobHandler{})
	handlers.Register(handler.ShellJobHandler{})
	handlers.Register(handler.ApiJobHandler{})
	handlers.Register(handler.ConditionHandler{})
	handlers.Register(handler.TemplateHandler{Renderer: textTemplateRenderer{}})
	handlers.Register(handler.DBReadHandler{FS: osFileSystem{}})
	handlers.Register(handler.SubdiagramHandler{})
	handlers.Register(handler.HookHandler{})
	handlers.Register(handler.PersonJobHandler{LLM: noLLMService{}, Persons: personLookup(dd)})

	keys := envAPIKeyStore{}
	checks := engine.BuildPreflightChecks(diag, keys, dd.Persons)
	preflightResult := engine.RunPreflight(context.Background(), checks)
	if !preflightResult.OK() {
		log.Printf("component=cli action=preflight_failed checks=%d", len(preflightResult.Failed))
		fmt.Fprintln(os.Stderr, preflightResult.Error())
		return 1
	}

	eng := engine.NewEngine(engine.Config{
		Handlers:    handlers,
		Registry:    registry,
		Bus:         bus,
		Concurrency: cfg.concurrency,
		RetryPolicy: retryPolicyFromName(cfg.retryPolicy),
		Checkpoint:  checkpoints,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Printf("component=cli action=interrupted")
		cancel()
	}()

	runResult := eng.Run(ctx, diag, nil)

	fmt.Printf("execution %s: %s\n", runResult.ExecutionID, runResult.Status)
	if len(runResult.FailedNodes) > 0 {
		fmt.Printf("failed nodes: %v\n", runResult.FailedNodes)
	}

	// Give background subscribers (event logger, store writer, transcript
	// sink) a moment to drain the terminal events before exiting.
	time.Sleep(50 * time.Millisecond)

	if sink != nil {
		router.Unsubscribe("cli:transcript")
		<-sinkDone
		writeTranscript(cfg.transcriptPath, sink)
	}

	if runResult.Err != nil {
		log.Printf("component=cli action=run_failed execution=%s err=%v", runResult.ExecutionID, runResult.Err)
		return 1
	}

	return 0
}

// writeTranscript renders the collected transcript to path, as HTML when
// the path says so, Markdown otherwise.
func writeTranscript(path string, sink *eventbus.LogSink) {
	var content string
	if strings.HasSuffix(path, ".html") {
		html, err := sink.HTML()
		if err != nil {
			log.Printf("component=cli action=transcript_render_failed path=%s err=%v", path, err)
			return
		}
		content = html
	} else {
		content = sink.Markdown()
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		log.Printf("component=cli action=transcript_write_failed path=%s err=%v", path, err)
		return
	}
	log.Printf("component=cli action=transcript_written path=%s", path)
}

func personLookup(dd domain.DomainDiagram) handler.PersonLookup {
	return func(id domain.PersonID) (domain.DomainPerson, bool) {
		p, ok := dd.Persons[id]
		return p, ok
	}
}

func retryPolicyFromName(name string) engine.RetryPolicy {
	switch name {
	case "none":
		return engine.RetryPolicyNone()
	default:
		return engine.RetryPolicyStandard()
	}
}

func openStore(cfg config) (ports.MessageStore, func() error, error) {
	switch cfg.storeKind {
	case "":
		return nil, nil, nil
	case "sqlite":
		path := cfg.storePath
		if path == "" {
			path = "dipeoengine.db"
		}
		s, err := store.OpenSqlite(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "jsonl":
		path := cfg.storePath
		if path == "" {
			path = "dipeoengine.jsonl"
		}
		s, err := store.OpenJsonl(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store kind %q", cfg.storeKind)
	}
}

func persistEvents(s ports.MessageStore, events <-chan eventbus.Event) {
	ctx := context.Background()
	for ev := range events {
		executionID, seq, payload, err := store.EncodeEvent(ev)
		if err != nil {
			log.Printf("component=cli action=encode_event_failed execution=%s seq=%d err=%v", ev.ExecutionID, ev.SequenceNo, err)
			continue
		}
		if err := s.Append(ctx, executionID, seq, payload); err != nil {
			log.Printf("component=cli action=persist_event_failed execution=%s seq=%d err=%v", ev.ExecutionID, ev.SequenceNo, err)
		}
	}
}

func logEvents(events <-chan eventbus.Event) {
	for ev := range events {
		switch ev.Type {
		case eventbus.EventExecutionStarted:
			log.Printf("component=engine.events action=execution_started execution=%s", ev.ExecutionID)
		case eventbus.EventNodeStarted:
			log.Printf("component=engine.events action=node_started execution=%s node=%s", ev.ExecutionID, ev.NodeID)
		case eventbus.EventNodeCompleted:
			log.Printf("component=engine.events action=node_completed execution=%s node=%s", ev.ExecutionID, ev.NodeID)
		case eventbus.EventNodeError:
			log.Printf("component=engine.events action=node_error execution=%s node=%s payload=%v", ev.ExecutionID, ev.NodeID, ev.Payload)
		case eventbus.EventExecutionCompleted:
			log.Printf("component=engine.events action=execution_completed execution=%s", ev.ExecutionID)
		case eventbus.EventExecutionAborted:
			log.Printf("component=engine.events action=execution_aborted execution=%s", ev.ExecutionID)
		case eventbus.EventExecutionError:
			log.Printf("component=engine.events action=execution_error execution=%s payload=%v", ev.ExecutionID, ev.Payload)
		case eventbus.EventSubscriberDropped:
			log.Printf("component=eventbus action=subscriber_dropped payload=%v", ev.Payload)
		}
	}
}

// osFileSystem is the host-filesystem adapter behind ports.FileSystem for
// DB_READ nodes run from the CLI.
type osFileSystem struct{}

func (osFileSystem) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (osFileSystem) WriteFile(ctx context.Context, path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

// textTemplateRenderer backs ports.TemplateRenderer with text/template.
type textTemplateRenderer struct{}

func (textTemplateRenderer) Render(ctx context.Context, tpl string, vars map[string]any) (string, error) {
	t, err := template.New("node").Parse(tpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var buf strings.Builder
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

// envAPIKeyStore resolves an ApiKeyID by reading the environment variable
// of the same name (ANTHROPIC_API_KEY, OPENAI_API_KEY, ...).
type envAPIKeyStore struct{}

func (envAPIKeyStore) Resolve(ctx context.Context, id domain.ApiKeyID) (string, error) {
	v := os.Getenv(string(id))
	if v == "" {
		return "", fmt.Errorf("no environment variable set for api key %q", id)
	}
	return v, nil
}

// noLLMService is the default PersonJob backend when no concrete
// ports.LLMService adapter is wired in: it fails clearly instead of
// silently no-op'ing, since no provider SDK adapter ships with this
// module.
type noLLMService struct{}

func (noLLMService) Complete(ctx context.Context, req ports.CompletionRequest) (ports.CompletionResult, error) {
	return ports.CompletionResult{}, fmt.Errorf("no LLMService configured: wire a provider adapter to run PERSON_JOB nodes")
}
