package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"

	"github.com/basedagent/basedagent/pkg/agent"
	"github.com/basedagent/basedagent/pkg/chat"
	"github.com/basedagent/basedagent/pkg/config"
	"github.com/basedagent/basedagent/pkg/gateway"
	"github.com/basedagent/basedagent/pkg/kvstore"
	"github.com/basedagent/basedagent/pkg/logger"
	"github.com/basedagent/basedagent/pkg/providers"
	"github.com/basedagent/basedagent/pkg/session"
	"github.com/basedagent/basedagent/pkg/wallet"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const appName = "basedagent"

// formatVersion returns the version string with optional git commit
func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func formatBuildInfo() (build string, goVer string) {
	if buildTime != "" {
		build = buildTime
	}
	goVer = goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", appName, formatVersion())
	build, goVer := formatBuildInfo()
	if build != "" {
		fmt.Fprintf(w, "  Build: %s\n", build)
	}
	if goVer != "" {
		fmt.Fprintf(w, "  Go: %s\n", goVer)
	}
}

func main() {
	if err := executeCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := strings.TrimSpace(os.Getenv("BASEDAGENT_CONFIG")); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".basedagent", "config.json")
}

func loadConfig(path string, debug bool) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.Configure(cfg.Log.Format, cfg.Log.Level)
	if debug {
		logger.SetLevel(logger.DEBUG)
	}
	return cfg, nil
}

// app is everything a running process holds: the stores and the chat
// service built on them.
type app struct {
	cfg         *config.Config
	walletStore kvstore.Store
	chatStore   kvstore.Store
	chat        *chat.Service
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	provider, err := providers.CreateProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	walletStore, chatStore, err := openStores(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	walletSvc := wallet.NewService(cfg.Wallet)
	ag := agent.NewAgent(cfg.Agent, provider, walletSvc)

	mode := session.WriteGuarded
	if cfg.Store.WalletWriteMode == config.WalletWriteAtomic {
		mode = session.WriteAtomic
	}
	svc := chat.NewService(
		session.NewWalletManager(walletStore, mode),
		session.NewHistoryManager(chatStore, time.Duration(cfg.Store.HistoryTTLSeconds)*time.Second),
		walletSvc,
		ag,
		chat.Options{SerializePerUser: cfg.Agent.SerializePerUser},
	)

	logger.InfoCF("main", "Runtime initialized",
		map[string]interface{}{
			"provider":         providers.ActiveProviderName(cfg),
			"model":            ag.Model(),
			"network":          cfg.Wallet.NetworkID,
			"wallet_mode":      cfg.Store.WalletWriteMode,
			"history_ttl_secs": cfg.Store.HistoryTTLSeconds,
		})
	return &app{cfg: cfg, walletStore: walletStore, chatStore: chatStore, chat: svc}, nil
}

// openStores opens the wallet and chat stores, sharing one connection when
// both point at the same URL. SQLite stores get a TTL sweeper.
func openStores(ctx context.Context, cfg config.StoreConfig) (kvstore.Store, kvstore.Store, error) {
	walletStore, err := kvstore.Open(cfg.WalletURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open wallet store: %w", err)
	}
	chatStore := walletStore
	if strings.TrimSpace(cfg.ChatURL) != strings.TrimSpace(cfg.WalletURL) {
		chatStore, err = kvstore.Open(cfg.ChatURL)
		if err != nil {
			_ = walletStore.Close()
			return nil, nil, fmt.Errorf("open chat store: %w", err)
		}
	}

	for _, s := range uniqueStores(walletStore, chatStore) {
		if err := s.Ping(ctx); err != nil {
			// Fail-soft: the service still answers, stateless and wallet-less.
			logger.WarnCF("main", "Store unreachable at startup", map[string]interface{}{"error": err.Error()})
		}
		sq, ok := s.(*kvstore.SQLiteStore)
		if !ok || strings.TrimSpace(cfg.SweepSchedule) == "" {
			continue
		}
		if err := sq.StartSweeper(ctx, cfg.SweepSchedule); err != nil {
			logger.WarnCF("main", "Expiry sweeper not started", map[string]interface{}{"error": err.Error()})
		}
	}
	return walletStore, chatStore, nil
}

func uniqueStores(stores ...kvstore.Store) []kvstore.Store {
	out := make([]kvstore.Store, 0, len(stores))
	for _, s := range stores {
		dup := false
		for _, seen := range out {
			if seen == s {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, s)
		}
	}
	return out
}

func (a *app) pingers() []gateway.Pinger {
	stores := uniqueStores(a.walletStore, a.chatStore)
	out := make([]gateway.Pinger, 0, len(stores))
	for _, s := range stores {
		out = append(out, s)
	}
	return out
}

func (a *app) Close() {
	for _, s := range uniqueStores(a.walletStore, a.chatStore) {
		if err := s.Close(); err != nil {
			logger.WarnCF("main", "Store close failed", map[string]interface{}{"error": err.Error()})
		}
	}
	logger.Sync()
}

func serveCmd(configPath string, debug bool) error {
	cfg, err := loadConfig(configPath, debug)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := gateway.NewServer(cfg.Server, a.chat, a.pingers()...)
	go func() {
		<-srv.Ready()
		fmt.Printf("%s listening on %s\n", appName, srv.Addr())
	}()
	if err := srv.Serve(ctx); err != nil {
		return err
	}
	fmt.Println("Gateway stopped")
	return nil
}

func chatCmd(configPath, user, message string, debug bool) error {
	if strings.TrimSpace(user) == "" {
		return fmt.Errorf("--user is required")
	}
	cfg, err := loadConfig(configPath, debug)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if strings.TrimSpace(message) != "" {
		reply, err := a.chat.Chat(ctx, user, message)
		if err != nil {
			return err
		}
		fmt.Printf("\n%s %s\n", appName, reply)
		return nil
	}

	fmt.Printf("%s Interactive mode as %s (Ctrl+C to exit)\n\n", appName, user)
	interactiveMode(ctx, a.chat, user)
	return nil
}

func interactiveMode(ctx context.Context, svc *chat.Service, user string) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s You: ", appName),
		HistoryFile:     filepath.Join(os.TempDir(), ".basedagent_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		simpleInteractiveMode(ctx, svc, user, os.Stdin, os.Stdout)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		if !respond(ctx, svc, user, line, os.Stdout) {
			return
		}
	}
}

func simpleInteractiveMode(ctx context.Context, svc *chat.Service, user string, in io.Reader, out io.Writer) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "%s You: ", appName)
		line, err := reader.ReadString('\n')
		if err != nil && strings.TrimSpace(line) == "" {
			fmt.Fprintln(out, "\nGoodbye!")
			return
		}
		if !respond(ctx, svc, user, line, out) {
			return
		}
	}
}

// respond answers one line of input. It returns false when the session
// should end.
func respond(ctx context.Context, svc *chat.Service, user, line string, out io.Writer) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}
	if input == "exit" || input == "quit" {
		fmt.Fprintln(out, "Goodbye!")
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	reply, err := svc.Chat(ctx, user, input)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return true
	}
	fmt.Fprintf(out, "\n%s %s\n\n", appName, reply)
	return true
}

func statusCmd(configPath string, out io.Writer) error {
	cfg, err := loadConfig(configPath, false)
	if err != nil {
		return err
	}

	mark := func(ok bool) string {
		if ok {
			return "✓"
		}
		return "✗"
	}

	fmt.Fprintf(out, "%s Status\n", appName)
	fmt.Fprintf(out, "Version: %s\n\n", formatVersion())

	_, statErr := os.Stat(configPath)
	fmt.Fprintln(out, "Config:", configPath, mark(statErr == nil))
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(out, "Config valid:", mark(false), err)
	} else {
		fmt.Fprintln(out, "Config valid:", mark(true))
	}

	provider, configured, mode, err := providers.ProviderCredentialStatus(cfg)
	if err != nil {
		fmt.Fprintln(out, "Provider:", err)
	} else {
		fmt.Fprintf(out, "Provider: %s (model %s) credentials %s %s\n", provider, valueOr(cfg.Agent.Model, "default"), mark(configured), mode)
	}

	walletReady := cfg.Wallet.APIKeyName != "" && cfg.Wallet.APIKeyPrivateKey != ""
	fmt.Fprintf(out, "Wallet service: %s on %s %s\n", cfg.Wallet.APIBase, cfg.Wallet.NetworkID, mark(walletReady))
	fmt.Fprintln(out, "API key enforced:", mark(cfg.APIKeyEnforced()))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	checkStore := func(label, url string) {
		s, err := kvstore.Open(url)
		if err != nil {
			fmt.Fprintf(out, "%s store: %s %s\n", label, mark(false), err)
			return
		}
		defer s.Close()
		pingErr := s.Ping(ctx)
		fmt.Fprintf(out, "%s store: %s\n", label, mark(pingErr == nil))
	}
	checkStore("Wallet", cfg.Store.WalletURL)
	if cfg.Store.ChatURL != cfg.Store.WalletURL {
		checkStore("Chat", cfg.Store.ChatURL)
	}
	return nil
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
