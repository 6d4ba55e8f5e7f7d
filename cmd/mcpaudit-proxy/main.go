// Command mcpaudit-proxy is the binary an instrumented mcp.json entry
// points at in place of the real MCP server. It unwraps any target command
// wrapping (guarding against nested re-installs), spawns the real server,
// and forwards stdio transparently while capturing a copy of everything
// for later analysis.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"mcpaudit/internal/configrewriter"
	"mcpaudit/internal/decision"
	"mcpaudit/internal/eventstore"
	"mcpaudit/internal/obslog"
	"mcpaudit/internal/paths"
	"mcpaudit/internal/proxy"
	"mcpaudit/internal/runtimeconfig"
)

func main() {
	targetCommand := flag.String("target-command", "", "real MCP server command to spawn")
	targetArgsRaw := flag.String("target-args", "", "space-separated args for the target command (args containing spaces can follow as trailing positional arguments)")
	configPath := flag.String("config", "", "path to runtime config YAML (optional)")
	flag.Parse()

	var targetArgs []string
	if *targetArgsRaw != "" {
		targetArgs = strings.Fields(*targetArgsRaw)
	}
	targetArgs = append(targetArgs, flag.Args()...)

	if *targetCommand == "" {
		fmt.Fprintln(os.Stderr, "mcpaudit-proxy: --target-command is required")
		os.Exit(2)
	}

	realCommand, realArgs, unwrapped := configrewriter.UnwrapRecursive(*targetCommand, targetArgs)
	serverName := os.Getenv("MCP_SERVER_NAME")
	if serverName == "" {
		serverName = realCommand
	}

	log := obslog.Get("proxy").With().Str("server", serverName).Logger()
	if unwrapped > 0 {
		log.Warn().Int("layers", unwrapped).Msg("unwrapped nested proxy wrapping before spawning target")
	}

	cfg, err := runtimeconfig.Load(*configPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to load runtime config, using defaults")
	}

	stateDir, err := paths.StateDir()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve state directory")
	}
	store := eventstore.New(stateDir)
	defer store.Close()

	recorder := decision.New(cfg.MaxDecisionSessions)

	p := proxy.New(serverName, realCommand, realArgs, store, recorder, cfg, log, proxy.WithWorkingDir(os.Getenv("MCP_TARGET_CWD")))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.Run(ctx, proxy.HostStdin, proxy.HostStdout); err != nil {
		log.Error().Err(err).Msg("proxy exited with error")
		os.Exit(1)
	}
}
