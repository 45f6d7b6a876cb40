package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wintermute-run/wintermute/internal/approval"
	"github.com/wintermute-run/wintermute/internal/assembler"
	"github.com/wintermute-run/wintermute/internal/boundary"
	"github.com/wintermute-run/wintermute/internal/budget"
	"github.com/wintermute-run/wintermute/internal/config"
	"github.com/wintermute-run/wintermute/internal/credentials"
	"github.com/wintermute-run/wintermute/internal/egress"
	"github.com/wintermute-run/wintermute/internal/heartbeat"
	"github.com/wintermute-run/wintermute/internal/history"
	"github.com/wintermute-run/wintermute/internal/memorystore"
	modelcatalog "github.com/wintermute-run/wintermute/internal/models"
	"github.com/wintermute-run/wintermute/internal/observability"
	"github.com/wintermute-run/wintermute/internal/policy"
	"github.com/wintermute-run/wintermute/internal/providers/anthropic"
	"github.com/wintermute-run/wintermute/internal/providers/bedrock"
	"github.com/wintermute-run/wintermute/internal/providers/google"
	"github.com/wintermute-run/wintermute/internal/providers/openai"
	"github.com/wintermute-run/wintermute/internal/redact"
	"github.com/wintermute-run/wintermute/internal/restart"
	"github.com/wintermute-run/wintermute/internal/router"
	"github.com/wintermute-run/wintermute/internal/session"
	"github.com/wintermute-run/wintermute/internal/toolregistry"
	"github.com/wintermute-run/wintermute/pkg/models"
)

func buildStartCmd(rootDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the agent kernel in the foreground until SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), *rootDir)
		},
	}
	return cmd
}

func runStart(ctx context.Context, root string) error {
	l := newLayout(root)

	cfg, err := config.Load(l.configPath())
	if err != nil {
		return fmt.Errorf("start: load config: %w", err)
	}
	logPriorRestart(root)

	creds, err := credentials.Load(l.envPath())
	if err != nil {
		return fmt.Errorf("start: load credentials: %w", err)
	}
	redactor := redact.New(creds.Values())

	store, err := memorystore.Open(l.memoryDBPath(), memorystore.WithFatalHandler(func(err error) {
		slog.Error("memory store write durably failed, exiting for supervisor restart", "error", err)
		os.Exit(1)
	}))
	if err != nil {
		return fmt.Errorf("start: open memory store: %w", err)
	}
	defer store.Close()

	hist, err := history.Open(l.agentLogPath())
	if err != nil {
		return fmt.Errorf("start: open history store: %w", err)
	}
	defer hist.Close()

	metrics := observability.NewMetrics()
	registry, err := toolregistry.New(l.scriptsDir(), coreToolDescriptors(), metrics)
	if err != nil {
		return fmt.Errorf("start: open tool registry: %w", err)
	}
	defer registry.Close()
	if err := registry.Start(ctx); err != nil {
		return fmt.Errorf("start: watch tool registry: %w", err)
	}

	containerCfg := boundary.ContainerConfig{
		Image:         cfg.Security.Executor.ContainerImage,
		WorkspaceDir:  l.workspaceDir(),
		ToolsDir:      l.scriptsDir(),
		SetupScript:   l.setupScript(),
		PackageList:   l.packageList(),
		ProxyURL:      "http://" + cfg.Security.Egress.ProxyAddr,
		MemoryLimitMB: cfg.Security.Executor.MemoryMB,
		PidsLimit:     cfg.Security.Executor.PidsLimit,
	}
	if cfg.Security.Executor.CPUShares > 0 {
		containerCfg.CPULimit = strconv.Itoa(cfg.Security.Executor.CPUShares)
	}
	executor, err := boundary.Probe(ctx, containerCfg, l.workspaceDir())
	if err != nil {
		return fmt.Errorf("start: probe sandbox executor: %w", err)
	}
	slog.Info("sandbox executor ready", "variant", executor.Variant())

	ledger := newTrustLedgerAdapter(store, cfg.Security.Egress.Allowlist, cfg.Security.Egress.BlockList)

	proxy := egress.New(cfg.Security.Egress.Allowlist,
		egress.WithTrustLedger(ledger),
		egress.WithDomainRateLimit(cfg.Security.Egress.RateLimitRPS, cfg.Security.Egress.RateLimitBurst),
	)
	egressServer := &http.Server{Addr: cfg.Security.Egress.ProxyAddr, Handler: proxy}
	go func() {
		if err := egressServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("egress proxy stopped", "error", err)
		}
	}()
	defer egressServer.Close()

	dailyReset := time.Now().Truncate(24 * time.Hour).Add(24 * time.Hour)
	daily := budget.NewDaily(cfg.Budget.DailyLimit, dailyReset)
	sessionBudget := budget.NewSession(cfg.Budget.SessionLimit, daily)

	rtr, err := buildRouter(cfg, creds)
	if err != nil {
		return fmt.Errorf("start: build model router: %w", err)
	}

	compactor := routerCompactor{rt: rtr, skill: "compaction"}
	asm := assembler.New(store, registry, compactor, int(cfg.Budget.SessionLimit))

	core := coreTools(coreToolConfig{Workspace: l.workspaceDir(), Tools: cfg.Tools, Session: cfg.Session})
	vecTools, err := vectorMemoryTools(cfg)
	if err != nil {
		slog.Warn("vector memory not initialized", "error", err)
	}
	core = append(core, vecTools...)

	dispatcher := boundary.NewDispatcher(executor, registry, core...)

	sess := &models.Session{
		ID:          uuid.NewString(),
		PrincipalID: "console",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	deliverer := &runtimeDeliverer{}
	approvals := approval.New(deliverer)
	notifier := consoleNotifier{}

	rt := session.New(sess, session.Config{
		Redactor:     redactor,
		Assembler:    asm,
		Router:       rtr,
		Budget:       sessionBudget,
		Approvals:    approvals,
		Tools:        registry,
		Executor:     dispatcher,
		Ledger:       ledger,
		History:      hist,
		Notifier:     notifier,
		Variant:      policy.ExecutorVariant(executor.Variant()),
		Docs:         loadDocuments(l),
		DefaultModel: cfg.LLM.Providers[cfg.LLM.DefaultProvider].DefaultModel,
		DefaultSkill: "default",
	})
	deliverer.rt = rt

	sessionStart := time.Now()
	metrics.SessionStarted()
	defer func() { metrics.SessionEnded(time.Since(sessionStart).Seconds()) }()

	rstate := newRuntimeState(executor, registry, store, daily, cfg.Budget.SessionLimit)
	identity := heartbeat.NewIdentityGenerator(root, rstate, "wintermute")
	writer := heartbeat.NewSnapshotWriter(l.healthPath(), heartbeat.DefaultSnapshotInterval, rstate, identity)

	if err := os.WriteFile(l.pidPath(), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("start: write pid file: %w", err)
	}
	defer os.Remove(l.pidPath())

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	writer.Start(runCtx)
	go rt.Run(runCtx)
	go pollApprovalPrompts(runCtx, approvals, sess.ID)

	if cfg.Tasks.Enabled {
		scheduler := buildTaskScheduler(cfg.Tasks, rtr, cfg.LLM.Providers[cfg.LLM.DefaultProvider].DefaultModel, metrics)
		if err := scheduler.Start(runCtx); err != nil {
			slog.Error("task scheduler failed to start", "error", err)
		} else {
			defer func() {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer stopCancel()
				_ = scheduler.Stop(stopCtx)
			}()
		}
	}

	fmt.Println("wintermute is running. type a message, or Ctrl-D to stop.")
	runConsoleLoop(runCtx, rt, approvals, sess.PrincipalID)

	<-runCtx.Done()
	slog.Info("shutting down", "reason", runCtx.Err())
	return nil
}

// buildRouter registers the configured model providers, resolving the
// default skill to the configured default provider.
func buildRouter(cfg *config.Config, creds *credentials.Store) (*router.Router, error) {
	var def router.Provider
	var rtr *router.Router

	for name, pcfg := range cfg.LLM.Providers {
		apiKey := pcfg.APIKey
		if apiKey == "" {
			if v, ok := creds.Get(envKeyFor(name)); ok {
				apiKey = v
			}
		}
		var p router.Provider
		switch name {
		case "anthropic":
			if pcfg.BaseURL != "" {
				p = anthropic.NewWithBaseURL(apiKey, pcfg.DefaultModel, pcfg.BaseURL)
			} else {
				p = anthropic.New(apiKey, pcfg.DefaultModel)
			}
		case "openai":
			if pcfg.BaseURL != "" {
				p = openai.NewWithBaseURL(apiKey, pcfg.DefaultModel, pcfg.BaseURL)
			} else {
				p = openai.New(apiKey, pcfg.DefaultModel)
			}
		case "google":
			gp, err := google.New(context.Background(), apiKey, pcfg.DefaultModel)
			if err != nil {
				slog.Warn("google provider unavailable", "error", err)
				continue
			}
			p = gp
		default:
			continue
		}
		if rtr == nil {
			rtr = router.New(p)
		} else {
			rtr.Register(name, p)
		}
		if name == cfg.LLM.DefaultProvider {
			def = p
		}
	}
	if rtr == nil {
		return nil, fmt.Errorf("no model providers configured")
	}
	if def != nil {
		rtr.Register(cfg.LLM.DefaultProvider, def)
	}

	if cfg.LLM.Bedrock.Enabled {
		if err := wireBedrockOracle(rtr, cfg.LLM.Bedrock); err != nil {
			slog.Warn("bedrock oracle unavailable, falling back to default provider", "error", err)
		}
	}

	return rtr, nil
}

// wireBedrockOracle discovers the flagship foundation model Bedrock exposes
// in the configured region and registers it as the router's oracle-role
// override, used for the supervisor's second-opinion diagnosis call
// (internal/router.RoleOracle) and any session asking for a second opinion
// from a different model family.
func wireBedrockOracle(rtr *router.Router, cfg config.BedrockConfig) error {
	discovery := modelcatalog.NewBedrockDiscovery(modelcatalog.BedrockDiscoveryConfig{
		Enabled:              cfg.Enabled,
		Region:               cfg.Region,
		ProviderFilter:       cfg.ProviderFilter,
		DefaultContextWindow: cfg.DefaultContextWindow,
		DefaultMaxTokens:     cfg.DefaultMaxTokens,
	}, slog.Default())

	discovered, err := discovery.Discover(context.Background())
	if err != nil {
		return fmt.Errorf("discover bedrock models: %w", err)
	}
	modelID := bestBedrockModel(discovered)
	if modelID == "" {
		return fmt.Errorf("no bedrock foundation models available in %s", cfg.Region)
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	oracle, err := bedrock.New(context.Background(), region, modelID)
	if err != nil {
		return fmt.Errorf("build bedrock adapter: %w", err)
	}
	rtr.SetRole(router.RoleOracle, oracle)
	return nil
}

// bestBedrockModel picks the highest-tier discovered model, preferring
// flagship-tier entries, as the oracle's single fixed model.
func bestBedrockModel(discovered []*modelcatalog.Model) string {
	var best *modelcatalog.Model
	for _, m := range discovered {
		if best == nil || (m.Tier == modelcatalog.TierFlagship && best.Tier != modelcatalog.TierFlagship) {
			best = m
		}
	}
	if best == nil {
		return ""
	}
	return best.ID
}

// loadDocuments reads the slow-changing identity, lessons, and profile
// documents the assembler includes verbatim on every turn. A missing file
// contributes an empty block rather than an error — a fresh install has
// none of these yet.
func loadDocuments(l layout) assembler.Documents {
	read := func(path string) string {
		b, err := os.ReadFile(path)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return assembler.Documents{
		Identity: read(l.identityPath()),
		Lessons:  read(l.lessonsPath()),
		Profile:  read(l.userProfilePath()),
	}
}

// logPriorRestart consumes any restart sentinel the supervisor left
// behind, reporting what it did while this process was relaunching.
// Absence of a sentinel is the common case and not logged.
func logPriorRestart(root string) {
	sentinel, err := restart.ConsumeSentinel(root)
	if err != nil {
		slog.Warn("read restart sentinel", "error", err)
		return
	}
	if sentinel == nil {
		return
	}
	slog.Info("resumed after supervisor restart", "summary", restart.Summarize(sentinel.Payload))
}

func envKeyFor(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	default:
		return ""
	}
}

// runtimeDeliverer indirects approval.Deliverer to the session.Runtime,
// which does not exist yet when the approval.Manager must be constructed.
type runtimeDeliverer struct {
	rt *session.Runtime
}

func (d *runtimeDeliverer) Deliver(ev approval.ResumeEvent) {
	if d.rt != nil {
		d.rt.Deliver(ev)
	}
}
