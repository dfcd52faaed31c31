// Command warden starts the intercepting proxy, or manages its CA material,
// per the start/gen-ca subcommands.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warden-proxy/warden/internal/admin"
	"github.com/warden-proxy/warden/internal/auth"
	"github.com/warden-proxy/warden/internal/ca"
	"github.com/warden-proxy/warden/internal/config"
	"github.com/warden-proxy/warden/internal/health"
	"github.com/warden-proxy/warden/internal/metrics"
	"github.com/warden-proxy/warden/internal/middleware"
	"github.com/warden-proxy/warden/internal/proxy"
	"github.com/warden-proxy/warden/internal/ratelimit"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var debug int

	root := &cobra.Command{
		Use:   "warden",
		Short: "warden is an intercepting HTTP(S) proxy with rule-based routing",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file")
	root.PersistentFlags().CountVarP(&debug, "debug", "d", "increase log verbosity (-d, -dd, -ddd)")

	root.AddCommand(newStartCmd(&configPath, &debug))
	root.AddCommand(newGenCACmd())
	return root
}

func newStartCmd(configPath *string, debug *int) *cobra.Command {
	var listen string
	var caCertPath string
	var caKeyPath string
	var noCA bool
	var rawRules []string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the proxy server",
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := parseRuleFlags(rawRules)
			if err != nil {
				return err
			}
			return runStart(*configPath, *debug, config.CLIOverrides{
				Listen:     listen,
				CACertPath: caCertPath,
				CAKeyPath:  caKeyPath,
				NoCA:       noCA,
				Rules:      rules,
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on, e.g. 127.0.0.1:7898")
	cmd.Flags().StringVar(&caCertPath, "ca-cert", "", "path to CA certificate (PEM or DER)")
	cmd.Flags().StringVar(&caKeyPath, "ca-key", "", "path to CA private key (PEM or DER)")
	cmd.Flags().BoolVar(&noCA, "noca", false, "disable HTTPS interception entirely")
	cmd.Flags().StringArrayVar(&rawRules, "rule", nil, "routing rule, e.g. protocol=http,host=example.com,target_host=127.0.0.1,target_port=8080 (repeatable)")
	return cmd
}

func newGenCACmd() *cobra.Command {
	var caCertPath string
	var caKeyPath string

	cmd := &cobra.Command{
		Use:   "gen-ca",
		Short: "generate a self-signed CA certificate and private key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenCA(caCertPath, caKeyPath)
		},
	}
	cmd.Flags().StringVar(&caCertPath, "ca-cert", "", "output path for the CA certificate (default: user state dir)")
	cmd.Flags().StringVar(&caKeyPath, "ca-key", "", "output path for the CA private key (default: user state dir)")
	return cmd
}

// parseRuleFlags parses repeated --rule flag values into config.RuleConfig
// entries, reusing proxy's textual rule grammar for validation but keeping
// the result in the config package's shape, which is what CLIOverrides and
// the merge pipeline expect.
func parseRuleFlags(raw []string) ([]config.RuleConfig, error) {
	rules := make([]config.RuleConfig, 0, len(raw))
	for _, r := range raw {
		rc, err := parseRuleFlag(r)
		if err != nil {
			return nil, fmt.Errorf("--rule %q: %w", r, err)
		}
		rules = append(rules, rc)
	}
	return rules, nil
}

func parseRuleFlag(raw string) (config.RuleConfig, error) {
	if _, _, err := proxy.ParseRule(raw); err != nil {
		return config.RuleConfig{}, err
	}

	var rc config.RuleConfig
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		k, v = strings.ToLower(strings.TrimSpace(k)), strings.TrimSpace(v)
		switch k {
		case "protocol":
			rc.Protocol = v
		case "host":
			rc.Host = v
		case "path":
			rc.Path = v
		case "port":
			rc.Port, _ = strconv.Atoi(v)
		case "target_protocol":
			rc.TargetProtocol = v
		case "target_host":
			rc.TargetHost = v
		case "target_port":
			rc.TargetPort, _ = strconv.Atoi(v)
		case "path_transform":
			rc.PathTransform = v
		case "target_path":
			rc.TargetPath = v
		}
	}
	return rc, nil
}

func runStart(configPath string, debug int, overrides config.CLIOverrides) error {
	configureLogging("info", "json", debug)

	sources := config.Sources{
		UserConfigPath: config.UserConfigFilePath(),
		CWDCandidates:  []string{"warden.toml", "config.toml"},
		ExplicitPath:   configPath,
	}
	cfg, err := config.MergeSources(sources, overrides)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	configureLogging(cfg.Logging.Level, cfg.Logging.Format, debug)
	slog.Info("configuration loaded")

	watchPath := resolveWatchPath(sources)
	versionMgr := config.NewVersionManager(10)
	var loader *config.Loader
	if watchPath != "" {
		loader = config.NewLoader(watchPath)
		if _, err := loader.Load(); err != nil {
			slog.Warn("failed to load watched config for versioning", slog.String("error", err.Error()))
		} else if rawData, err := os.ReadFile(watchPath); err == nil {
			versionMgr.Save(cfg, rawData)
		}
	}

	authority, err := resolveAuthority(cfg.CA)
	if err != nil {
		return fmt.Errorf("resolve CA material: %w", err)
	}

	manager := proxy.NewProxyManager(cfg.Proxy.CacheSize)
	managerMu := &sync.RWMutex{}
	loadRules(manager, cfg.Proxy.Rules)

	handler := proxy.NewHandler(manager, cfg.CA.Enabled)
	proxyServer := proxy.NewServer(handler, authority)

	checker := health.NewChecker()
	checker.SetRuleCountsProvider(func() (exact, pattern int) {
		managerMu.RLock()
		defer managerMu.RUnlock()
		return manager.ExactRuleCount(), manager.PatternRuleCount()
	})

	middlewares := []middleware.Middleware{
		middleware.RequestID(),
		middleware.TraceContext(),
		middleware.Logging(),
		middleware.Metrics(),
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.Rate > 0 {
		window := cfg.RateLimit.Window
		if window == 0 {
			window = time.Minute
		}
		limiter := ratelimit.NewLimiter(cfg.RateLimit.Rate, window)
		middlewares = append(middlewares, middleware.RateLimit(limiter, middleware.DestinationHostKeyExtractor))
		slog.Info("rate limiting enabled, keyed by destination host",
			slog.Int("rate", cfg.RateLimit.Rate), slog.Duration("window", window))
	}

	chained := middleware.Chain(proxyServer, middlewares...)

	mux := http.NewServeMux()
	mux.Handle("/healthz", checker.HealthzHandler())
	mux.Handle("/readyz", checker.ReadyzHandler())
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", chained)

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var adminSrv *http.Server
	if cfg.Admin.Enabled && cfg.Admin.Listen != "" && loader != nil {
		adminServer := admin.New(loader, versionMgr, manager, managerMu)
		var adminHandler http.Handler = adminServer.Handler()
		if cfg.Auth.APIKey.Enabled && len(cfg.Auth.APIKey.Keys) > 0 {
			authenticator := auth.NewAPIKeyAuthenticator(cfg.Auth.APIKey.Keys)
			adminHandler = middleware.Chain(adminHandler, middleware.Auth(authenticator))
			slog.Info("API key authentication enabled for the admin API", slog.Int("keys", len(cfg.Auth.APIKey.Keys)))
		}
		adminSrv = &http.Server{Addr: cfg.Admin.Listen, Handler: adminHandler}
		go func() {
			slog.Info("admin API starting", slog.String("listen", cfg.Admin.Listen))
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("admin server error", slog.String("error", err.Error()))
			}
		}()
	}

	done := make(chan struct{})
	if loader != nil {
		go func() {
			err := loader.Watch(func(newCfg *config.Config) {
				managerMu.Lock()
				manager.Clear()
				loadRules(manager, newCfg.Proxy.Rules)
				managerMu.Unlock()

				if rawData, err := os.ReadFile(watchPath); err == nil {
					versionMgr.Save(newCfg, rawData)
				}
			}, done)
			if err != nil {
				slog.Error("config watcher error", slog.String("error", err.Error()))
			}
		}()
	}

	go func() {
		slog.Info("warden proxy starting", slog.String("listen", cfg.Server.Listen))
		checker.SetReady(true)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", slog.String("signal", sig.String()))

	checker.SetReady(false)
	close(done)

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if adminSrv != nil {
		if err := adminSrv.Shutdown(ctx); err != nil {
			slog.Error("admin shutdown error", slog.String("error", err.Error()))
		}
	}
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	slog.Info("warden proxy stopped")
	return nil
}

// resolveWatchPath picks the single file the hot-reload watcher follows:
// whichever source MergeSources would have actually read from, in the same
// precedence order, since only one file can be watched at a time.
func resolveWatchPath(sources config.Sources) string {
	if sources.ExplicitPath != "" {
		return sources.ExplicitPath
	}
	for _, c := range sources.CWDCandidates {
		if fileExists(c) {
			return c
		}
	}
	if sources.UserConfigPath != "" && fileExists(sources.UserConfigPath) {
		return sources.UserConfigPath
	}
	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func loadRules(manager *proxy.ProxyManager, rules []config.RuleConfig) {
	for _, rc := range rules {
		pattern, target, err := admin.RuleFromConfig(rc)
		if err != nil {
			slog.Warn("skipping invalid rule", slog.String("host", rc.Host), slog.String("error", err.Error()))
			continue
		}
		manager.AddRule(pattern, target)
	}
}

// resolveAuthority loads or generates CA material per cfg, mirroring the
// original's default-vs-explicit path precedence. Returns ca.NoCa{} when
// interception is disabled.
func resolveAuthority(cfg config.CAConfig) (proxy.CertAuthority, error) {
	if !cfg.Enabled {
		return ca.NoCa{}, nil
	}

	certPath := cfg.CertPath
	keyPath := cfg.KeyPath
	if certPath == "" {
		certPath = config.DefaultCACertPath()
	}
	if keyPath == "" {
		keyPath = config.DefaultCAKeyPath()
	}

	if certPath != "" && keyPath != "" && fileExists(certPath) && fileExists(keyPath) {
		material, err := ca.LoadCAFromSources(ca.FileCertInput(certPath), ca.FileCertInput(keyPath))
		if err != nil {
			return nil, err
		}
		slog.Info("loaded CA material", slog.String("cert", certPath), slog.String("key", keyPath))
		return ca.NewAuthority(material), nil
	}

	slog.Info("no CA material found, generating a fresh self-signed CA")
	material, err := ca.GenerateSelfSigned(ca.SelfSignedCAConfig{CommonName: cfg.CommonName, Validity: cfg.Validity})
	if err != nil {
		return nil, err
	}
	if certPath != "" && keyPath != "" {
		if err := persistCAMaterial(material, certPath, keyPath); err != nil {
			slog.Warn("failed to persist generated CA material", slog.String("error", err.Error()))
		} else {
			slog.Info("generated CA material persisted", slog.String("cert", certPath), slog.String("key", keyPath))
		}
	}
	return ca.NewAuthority(material), nil
}

func persistCAMaterial(material ca.Material, certPath, keyPath string) error {
	keyPEM, err := material.KeyPEM()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(certPath), 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(certPath, material.CertPEM(), 0o644); err != nil {
		return err
	}
	return os.WriteFile(keyPath, keyPEM, 0o600)
}

func configureLogging(level, format string, debug int) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if debug > 0 {
		lvl = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if strings.ToLower(format) == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

func runGenCA(caCertPath, caKeyPath string) error {
	usingDefaults := caCertPath == "" && caKeyPath == ""
	if caCertPath == "" {
		caCertPath = config.DefaultCACertPath()
	}
	if caKeyPath == "" {
		caKeyPath = config.DefaultCAKeyPath()
	}
	if caCertPath == "" || caKeyPath == "" {
		return fmt.Errorf("could not determine a default CA material path; pass --ca-cert and --ca-key explicitly")
	}

	reader := bufio.NewReader(os.Stdin)
	if usingDefaults {
		ok, err := confirmOverwrite(reader, caCertPath)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("certificate generation cancelled")
			return nil
		}
		ok, err = confirmOverwrite(reader, caKeyPath)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("certificate generation cancelled")
			return nil
		}
	}

	material, err := ca.GenerateSelfSigned(ca.SelfSignedCAConfig{})
	if err != nil {
		return fmt.Errorf("generate CA: %w", err)
	}
	if err := persistCAMaterial(material, caCertPath, caKeyPath); err != nil {
		return fmt.Errorf("write CA material: %w", err)
	}

	fmt.Printf("CA certificate generated and saved to: %s\n", caCertPath)
	fmt.Printf("CA private key saved to: %s\n", caKeyPath)
	return nil
}

// confirmOverwrite prompts y/N when path already exists, mirroring the
// original CLI's gen-ca confirmation step.
func confirmOverwrite(reader *bufio.Reader, path string) (bool, error) {
	if !fileExists(path) {
		return true, nil
	}
	fmt.Printf("File %s already exists. Do you want to overwrite it? (y/N): ", path)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
