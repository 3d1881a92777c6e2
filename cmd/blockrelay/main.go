// blockrelay - Minecraft network to Discord bridge
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/blockrelay/blockrelay/internal/api"
	"github.com/blockrelay/blockrelay/internal/auth"
	"github.com/blockrelay/blockrelay/internal/bridge"
	"github.com/blockrelay/blockrelay/internal/config"
	"github.com/blockrelay/blockrelay/internal/discord"
	"github.com/blockrelay/blockrelay/internal/domain"
	"github.com/blockrelay/blockrelay/internal/gamenet"
	"github.com/blockrelay/blockrelay/internal/linking"
	"github.com/blockrelay/blockrelay/internal/logging"
	"github.com/blockrelay/blockrelay/internal/storage"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

var version = "dev"

const defaultConfigPath = "/etc/blockrelay/config.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "config":
		cmdConfig(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "players":
		cmdPlayers(os.Args[2:])
	case "accounts":
		cmdAccounts(os.Args[2:])
	case "token":
		cmdToken(os.Args[2:])
	case "version":
		fmt.Printf("blockrelay %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: blockrelay <command> [options] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                               Start the bridge")
	fmt.Println("  config                              Print the effective configuration")
	fmt.Println("  status                              Show bridge status from a running server")
	fmt.Println("  players                             Show players online across the network")
	fmt.Println("  accounts list [--link STATUS]       List known accounts")
	fmt.Println("  accounts show <name>                Show one account by nickname or username")
	fmt.Println("  accounts nick <name> <nickname>     Change an account's nickname")
	fmt.Println("  token [--ttl D] <operator>          Issue a bearer token for the status API")
	fmt.Println("  version                             Show version")
	fmt.Println("  help                                Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to configuration file (default /etc/blockrelay/config.yml)")
	fmt.Println("  --url <url>        Base URL of the status API (default: derived from config)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  blockrelay serve --config /etc/blockrelay/config.yml")
	fmt.Println("  blockrelay accounts list --link pending")
	fmt.Println("  blockrelay token dashboard")
}

// botStatus reports Discord health for the status API
type botStatus struct {
	bot    *discord.Bot
	bridge *bridge.Bridge
}

func (s botStatus) BreakerState() string { return s.bot.BreakerState().String() }
func (s botStatus) PendingAlerts() int   { return s.bridge.PendingAlerts() }

// cmdServe starts the bridge
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	logger.Info("blockrelay_starting", "version", version, "config", *configPath)

	if cfg.Discord.Token == "" {
		fatal(logger, "discord_token_missing", fmt.Errorf("set discord.token or DISCORD_TOKEN"))
	}

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		fatal(logger, "database_open_failed", err)
	}
	defer store.Close()
	logger.Info("database_opened", "path", cfg.Database.Path)

	natsURL := cfg.NATS.URL
	var embedded interface{ Shutdown() }
	if cfg.NATS.Embedded {
		srv, err := gamenet.StartEmbedded(cfg.NATS.EmbeddedHost, cfg.NATS.EmbeddedPort)
		if err != nil {
			fatal(logger, "nats_embedded_failed", err)
		}
		embedded = srv
		natsURL = srv.ClientURL()
		logger.Info("nats_embedded_started", "url", natsURL)
	}

	linker := linking.NewLinker(store, cfg.Messages, logger)

	bot, err := discord.New(cfg.Discord, cfg.Messages, linker, logger)
	if err != nil {
		fatal(logger, "discord_init_failed", err)
	}
	logger.Info("discord_configured", "token", logging.MaskToken(cfg.Discord.Token), "guild_id", cfg.Discord.GuildID)

	client, err := gamenet.Connect(natsURL, cfg.NATS.SubjectPrefix, logger)
	if err != nil {
		fatal(logger, "nats_connect_failed", err)
	}

	b := bridge.New(bridge.Options{
		Store:         store,
		Linker:        linker,
		Game:          client,
		Chat:          bot,
		Messages:      cfg.Messages,
		HeadURL:       cfg.Discord.MinecraftHeadURL,
		LoginTimeout:  cfg.NATS.LoginTimeout,
		AlertInterval: cfg.Alerts.SweepInterval,
		Logger:        logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bot.Open(ctx, b); err != nil {
		fatal(logger, "discord_open_failed", err)
	}
	if err := client.Start(ctx, b); err != nil {
		fatal(logger, "nats_subscribe_failed", err)
	}
	b.Start(ctx)

	// Set up signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var server *http.Server
	serverErr := make(chan error, 1)
	if cfg.HTTP.ListenAddr != "" {
		authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
		if !authService.Enabled() {
			logger.Warn("api_auth_disabled", "reason", "no jwt secret configured; account routes are closed and /ws is open")
		}
		router := api.NewRouter(api.Options{
			Accounts: store,
			Players:  client,
			Status:   botStatus{bot: bot, bridge: b},
			Auth:     authService,
			Logger:   logger,
		})
		router.StartWebSocketHub(ctx, b.Events())

		server = &http.Server{
			Addr:         cfg.HTTP.ListenAddr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.Info("http_listening", "addr", cfg.HTTP.ListenAddr)
			if err := server.ListenAndServe(); err != http.ErrServerClosed {
				serverErr <- err
			}
			close(serverErr)
		}()
	} else {
		go drainEvents(ctx, b.Events())
	}

	// Wait for signal or error
	select {
	case sig := <-sigCh:
		logger.Info("shutdown_signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("http_server_failed", "error", err)
	}

	// Sequential shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http_shutdown_failed", "error", err)
		}
	}

	cancel()
	if err := client.Close(); err != nil {
		logger.Warn("nats_close_failed", "error", err)
	}
	b.Stop(shutdownCtx)
	if err := bot.Close(); err != nil {
		logger.Warn("discord_close_failed", "error", err)
	}
	if embedded != nil {
		embedded.Shutdown()
	}
	logger.Info("shutdown_complete")
}

// drainEvents discards bridge events when no API consumes them
func drainEvents(ctx context.Context, events <-chan domain.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-events:
		}
	}
}

func fatal(logger *slog.Logger, event string, err error) {
	logger.Error(event, "error", err)
	os.Exit(1)
}

// cmdConfig prints the configuration after defaults are applied
func cmdConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg.Discord.Token = logging.MaskToken(cfg.Discord.Token)
	if cfg.Auth.JWTSecret != "" {
		cfg.Auth.JWTSecret = "****"
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	enc.Close()
}

// CLI helper variable
var baseURL = "http://localhost:8080"

// loadCLIConfig loads config and derives the API base URL, letting --url override it
func loadCLIConfig(configPath, url string) *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config from %s: %v\n", configPath, err)
		cfg = &config.Config{}
		cfg.ApplyDefaults()
	} else if cfg.HTTP.ListenAddr != "" {
		host, port, _ := strings.Cut(cfg.HTTP.ListenAddr, ":")
		if host == "" || host == "0.0.0.0" {
			host = "localhost"
		}
		baseURL = fmt.Sprintf("http://%s:%s", host, port)
	}

	if url != "" {
		baseURL = strings.TrimSuffix(url, "/")
	}
	return cfg
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	url := fs.String("url", "", "base URL of the status API")
	fs.Parse(args)

	loadCLIConfig(*configPath, *url)

	var status api.StatusResponse
	if err := getJSON("/api/status", &status); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Players online:\t%d\n", status.PlayersOnline)
	fmt.Fprintf(w, "Accounts:\t%d (%d linked, %d pending)\n", status.Accounts.Total, status.Accounts.Linked, status.Accounts.Pending)
	fmt.Fprintf(w, "Discord:\t%s\n", status.Discord)
	fmt.Fprintf(w, "Death alerts:\t%d pending\n", status.PendingDeathAlerts)
	fmt.Fprintf(w, "Event clients:\t%d\n", status.WebSocketClients)
	w.Flush()
}

func cmdPlayers(args []string) {
	fs := flag.NewFlagSet("players", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	url := fs.String("url", "", "base URL of the status API")
	server := fs.String("server", "", "show only players on this backend server")
	fs.Parse(args)

	loadCLIConfig(*configPath, *url)

	var players []domain.PlayerStatus
	if err := getJSON("/api/players", &players); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLAYER\tNICKNAME\tSERVER\tLINK")
	fmt.Fprintln(w, "------\t--------\t------\t----")
	for _, p := range players {
		if *server != "" && !strings.EqualFold(p.Server, *server) {
			continue
		}
		nick := p.Nickname
		if nick == "" {
			nick = "-"
		}
		srv := p.Server
		if srv == "" {
			srv = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Username, nick, srv, p.Link)
	}
	w.Flush()
}

func cmdAccounts(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: accounts subcommand required: list, show, nick\n")
		os.Exit(1)
	}

	subCmd := args[0]
	fs := flag.NewFlagSet("accounts "+subCmd, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	link := fs.String("link", "", "filter by link status (unlinked, pending, linked)")
	fs.Parse(args[1:])

	cfg := loadCLIConfig(*configPath, "")

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()

	switch subCmd {
	case "list":
		err = cmdAccountsList(ctx, store, *link)
	case "show":
		err = cmdAccountsShow(ctx, store, fs.Args())
	case "nick":
		err = cmdAccountsNick(ctx, store, fs.Args())
	default:
		err = fmt.Errorf("unknown accounts command: %s (use: list, show, nick)", subCmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		store.Close()
		os.Exit(1)
	}
}

func cmdAccountsList(ctx context.Context, store *storage.Store, link string) error {
	accounts, err := store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tNICKNAME\tLINK\tDISCORD_ID\tCREATED")
	fmt.Fprintln(w, "--------\t--------\t----\t----------\t-------")

	shown := 0
	for _, acct := range accounts {
		if link != "" && string(acct.Link.Status) != link {
			continue
		}
		discordID := acct.DiscordID()
		if discordID == "" {
			discordID = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", acct.Username, acct.Nickname, acct.Link.Status, discordID, acct.CreatedAt.Format("2006-01-02 15:04"))
		shown++
	}
	if shown == 0 {
		fmt.Println("No accounts found")
		return nil
	}
	return w.Flush()
}

func cmdAccountsShow(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: blockrelay accounts show <name>")
	}

	acct, err := store.AccountByName(ctx, args[0])
	if err != nil {
		return err
	}
	if acct == nil {
		return fmt.Errorf("account %q not found", args[0])
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Minecraft ID:\t%s\n", acct.ID)
	fmt.Fprintf(w, "Username:\t%s\n", acct.Username)
	fmt.Fprintf(w, "Nickname:\t%s\n", acct.Nickname)
	fmt.Fprintf(w, "Link:\t%s\n", acct.Link.Status)
	if id := acct.DiscordID(); id != "" {
		fmt.Fprintf(w, "Discord ID:\t%s\n", id)
	}
	fmt.Fprintf(w, "DMs while online:\t%t\n", acct.NotifyWhileOnline)
	fmt.Fprintf(w, "DMs while offline:\t%t\n", acct.NotifyWhileOffline)
	if acct.DeathAlertDelay > 0 {
		fmt.Fprintf(w, "Death alert delay:\t%s\n", acct.DeathAlertDelay)
	} else {
		fmt.Fprintf(w, "Death alert delay:\tdisabled\n")
	}
	fmt.Fprintf(w, "Created:\t%s\n", acct.CreatedAt.Format(time.RFC3339))
	return w.Flush()
}

func cmdAccountsNick(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: blockrelay accounts nick <name> <nickname>")
	}

	acct, err := store.AccountByName(ctx, args[0])
	if err != nil {
		return err
	}
	if acct == nil {
		return fmt.Errorf("account %q not found", args[0])
	}

	ok, err := store.UpdateNickname(ctx, acct.ID, args[1])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("nickname %q is already taken", args[1])
	}
	fmt.Printf("%s is now known as %s\n", acct.Username, args[1])
	return nil
}

// cmdToken issues a bearer token signed with the configured secret
func cmdToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	ttl := fs.Duration("ttl", 0, "token lifetime (default: auth.token_duration)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: blockrelay token [--ttl D] <operator>\n")
		os.Exit(1)
	}

	cfg := loadCLIConfig(*configPath, "")
	duration := cfg.Auth.TokenDuration
	if *ttl > 0 {
		duration = *ttl
	}

	tok, err := auth.NewService(cfg.Auth.JWTSecret, duration).GenerateToken(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}

func getJSON(path string, target any) error {
	resp, err := http.Get(baseURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return json.NewDecoder(resp.Body).Decode(target)
}
