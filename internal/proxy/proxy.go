// Package proxy implements the stdio interception proxy (C2): it spawns
// the real MCP server as a child process and sits between it and the host,
// forwarding every byte unchanged while capturing a copy of each line on a
// side channel for the event store and decision recorder. Forwarding must
// never stall on capture, parsing, or disk I/O - a slow capture path drops
// work rather than blocking the hot path, the same transparency guarantee
// the logger's async writer gives structured logging.
package proxy

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mcpaudit/internal/decision"
	"mcpaudit/internal/eventstore"
	"mcpaudit/internal/mcperrors"
	"mcpaudit/internal/mcpmodel"
	"mcpaudit/internal/runtimeconfig"
)

const (
	streamMessages  = "mcp_audit_messages"
	streamDecisions = "llm_decision_trace"
	streamPrompts   = "user_prompts"
	streamContext   = "conversation_context"
)

// spawnProbation is how long after Start a child exit is still treated as
// a spawn failure rather than a normal shutdown.
const spawnProbation = 100 * time.Millisecond

// Proxy spawns target command/args as a child process and forwards stdio
// between it and the host transparently, capturing a copy of every line.
type Proxy struct {
	targetCommand string
	targetArgs    []string
	serverName    string
	workingDir    string

	store    *eventstore.Store
	recorder *decision.Recorder
	cfg      runtimeconfig.Config
	log      zerolog.Logger

	// pendingRequests maps in-flight JSON-RPC request ids to their capture
	// time so the matching response can be stamped with latency. Touched
	// only from the capture goroutine, never the forwarding paths.
	pendingRequests map[string]time.Time
}

// Option configures a Proxy at construction.
type Option func(*Proxy)

// WithWorkingDir overrides the child process's working directory.
func WithWorkingDir(dir string) Option {
	return func(p *Proxy) { p.workingDir = dir }
}

// New returns a Proxy that will spawn targetCommand with targetArgs when Run
// is called.
func New(serverName, targetCommand string, targetArgs []string, store *eventstore.Store, recorder *decision.Recorder, cfg runtimeconfig.Config, log zerolog.Logger, opts ...Option) *Proxy {
	p := &Proxy{
		serverName:      serverName,
		targetCommand:   targetCommand,
		targetArgs:      targetArgs,
		store:           store,
		recorder:        recorder,
		cfg:             cfg,
		log:             log,
		pendingRequests: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type rawLine struct {
	direction mcpmodel.Direction
	line      string
	at        time.Time
}

// Run spawns the target server and forwards stdio between it and the host
// until either side closes or ctx is cancelled. It blocks until the child
// process exits. A child that dies within the spawn probation window is
// reported as a spawn failure; a child that exits after serving traffic is
// an orderly shutdown even if its exit code was non-zero.
func (p *Proxy) Run(ctx context.Context, hostIn io.Reader, hostOut io.Writer) error {
	cmd := exec.CommandContext(ctx, p.targetCommand, p.targetArgs...)
	if p.workingDir != "" {
		cmd.Dir = p.workingDir
	}

	childIn, err := cmd.StdinPipe()
	if err != nil {
		return mcperrors.New(mcperrors.KindSpawn, "proxy.Run", err)
	}
	childOut, err := cmd.StdoutPipe()
	if err != nil {
		return mcperrors.New(mcperrors.KindSpawn, "proxy.Run", err)
	}
	childErr, err := cmd.StderrPipe()
	if err != nil {
		return mcperrors.New(mcperrors.KindSpawn, "proxy.Run", err)
	}

	if err := cmd.Start(); err != nil {
		return mcperrors.New(mcperrors.KindSpawn, "proxy.Run", err)
	}
	started := time.Now()
	p.log.Info().Str("command", p.targetCommand).Strs("args", p.targetArgs).Int("pid", cmd.Process.Pid).Msg("spawned target MCP server")

	captureCh := make(chan rawLine, 4096)
	var captureWG sync.WaitGroup
	captureWG.Add(1)
	go func() {
		defer captureWG.Done()
		p.captureLoop(captureCh)
	}()

	var forwardWG sync.WaitGroup
	forwardWG.Add(2)
	go func() {
		defer forwardWG.Done()
		forwardLines(hostIn, childIn, mcpmodel.DirectionLLMToMCPClient, captureCh)
		childIn.Close()
	}()
	// The child closing its stdout marks its exit for the probation check,
	// so the time spent waiting for host EOF afterwards is not counted.
	var childOutClosed time.Time
	go func() {
		defer forwardWG.Done()
		forwardLines(childOut, hostOut, mcpmodel.DirectionMCPClientToServer, captureCh)
		childOutClosed = time.Now()
	}()
	go p.monitorStderr(childErr)

	// Both forwarding paths ending means host EOF and child stdout EOF:
	// everything is drained, so reaping the child now cannot lose output.
	forwardWG.Wait()
	waitErr := cmd.Wait()

	close(captureCh)
	drained := make(chan struct{})
	go func() {
		captureWG.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(time.Duration(p.cfg.ShutdownDrainSeconds) * time.Second):
		p.log.Warn().Msg("capture queue did not drain before shutdown timeout")
	}

	if childOutClosed.Sub(started) < spawnProbation {
		if waitErr == nil {
			waitErr = fmt.Errorf("target exited immediately")
		}
		return mcperrors.New(mcperrors.KindSpawn, "proxy.Run", waitErr)
	}
	if waitErr != nil {
		p.log.Warn().Err(waitErr).Msg("target server exited with error after serving traffic")
	}
	return nil
}

// forwardLines copies src to dst line-by-line, preserving the exact bytes
// of each line (including its terminating newline) so the forwarded stream
// is byte-for-byte identical to the source. Each line is also pushed,
// non-blocking, onto captureCh for asynchronous inspection.
func forwardLines(src io.Reader, dst io.Writer, direction mcpmodel.Direction, captureCh chan<- rawLine) {
	reader := bufio.NewReaderSize(src, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			dst.Write([]byte(line)) //nolint:errcheck
			select {
			case captureCh <- rawLine{direction: direction, line: line, at: time.Now()}:
			default:
			}
		}
		if err != nil {
			return
		}
	}
}

func (p *Proxy) monitorStderr(childErr io.Reader) {
	scanner := bufio.NewScanner(childErr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "error") || strings.Contains(lower, "failed") {
			p.log.Error().Str("server", p.serverName).Msg(line)
		} else {
			p.log.Warn().Str("server", p.serverName).Msg(line)
		}
	}
}

func (p *Proxy) captureLoop(captureCh <-chan rawLine) {
	for rl := range captureCh {
		p.capture(rl)
	}
}

func (p *Proxy) capture(rl rawLine) {
	trimmed := strings.TrimRight(rl.line, "\r\n")
	if trimmed == "" {
		return
	}
	if len(trimmed) > p.cfg.MaxCapturedJSONBytes {
		p.log.Warn().Int("size", len(trimmed)).Msg("dropping oversized captured payload")
		return
	}
	if !json.Valid([]byte(trimmed)) {
		return
	}

	event := mcpmodel.MCPEvent{
		Timestamp:       rl.at,
		Direction:       rl.direction,
		ServerName:      p.serverName,
		ServerProcessID: os.Getpid(),
		Protocol:        mcpmodel.ProtocolJSONRPC,
		Payload:         json.RawMessage(append([]byte(nil), trimmed...)),
	}

	p.matchLatency(&event)
	p.deriveContext(&event)
	p.analyzeDecision(&event)

	if err := p.store.Append(streamMessages, event); err != nil {
		p.log.Error().Err(err).Msg("failed to persist captured MCP event")
	}
}

// matchLatency pairs responses with the request carrying the same JSON-RPC
// id, stamping the response with the wall-clock delta, and classifies the
// response's error when the payload carries one.
func (p *Proxy) matchLatency(event *mcpmodel.MCPEvent) {
	id := event.ID()
	if id == nil {
		return
	}
	key := string(id)

	switch {
	case event.Direction == mcpmodel.DirectionLLMToMCPClient && event.Method() != "":
		p.pendingRequests[key] = event.Timestamp
	case event.Direction == mcpmodel.DirectionMCPClientToServer && event.IsResponse():
		if requestedAt, ok := p.pendingRequests[key]; ok {
			delete(p.pendingRequests, key)
			latency := event.Timestamp.Sub(requestedAt).Milliseconds()
			event.LatencyMS = &latency
		}
		if code := event.DeriveErrorCode(); code != "" {
			event.ErrorCode = &code
		}
	}
}

func (p *Proxy) deriveContext(event *mcpmodel.MCPEvent) {
	ctx := &mcpmodel.EnhancedContext{
		LLMInitiated: event.Direction == mcpmodel.DirectionLLMToMCPClient,
	}
	if method := event.Method(); method != "" {
		ctx.ToolMethod = method
	}
	if tool := event.ToolName(); tool != "" {
		ctx.ToolName = tool
	}
	event.EnhancedContext = ctx
}

func (p *Proxy) analyzeDecision(event *mcpmodel.MCPEvent) {
	method := event.Method()

	switch {
	case event.Direction == mcpmodel.DirectionLLMToMCPClient && method == "tools/list":
		p.handleToolDiscovery()
	case event.Direction == mcpmodel.DirectionLLMToMCPClient && method == "tools/call":
		p.handleToolCall(event)
	case event.Direction == mcpmodel.DirectionLLMToMCPClient && method == "initialize":
		p.handleInitialization(event)
	case event.Direction == mcpmodel.DirectionMCPClientToServer && event.IsResponse():
		p.handleResponse(event)
	}
}

func (p *Proxy) handleToolDiscovery() {
	decisionID := uuid.NewString()
	ev := p.recorder.BeginReasoning(decisionID, p.serverName, "[Tool Discovery] exploring available tools", []string{"tools/list"}, mcpmodel.PhaseDiscovery)
	p.persistDecision(ev)
}

func (p *Proxy) handleInitialization(event *mcpmodel.MCPEvent) {
	decisionID := uuid.NewString()
	ev := p.recorder.BeginReasoning(decisionID, p.serverName, "[System] MCP connection initialization", capabilityNames(event.Payload), mcpmodel.PhaseInitialization)
	p.persistDecision(ev)
	if sel, ok := p.recorder.RecordSelection(decisionID, []string{"MCP_SETUP"}, "initializing MCP connection for tool access", 0); ok {
		p.persistDecision(sel)
	}
}

func (p *Proxy) handleToolCall(event *mcpmodel.MCPEvent) {
	toolName := event.ToolName()
	args := toolArgs(event.Payload)
	inferred := inferUserPrompt(toolName, args)

	decisionID := uuid.NewString()
	begin := p.recorder.BeginReasoning(decisionID, p.serverName, inferred, []string{toolName}, mcpmodel.PhaseDiscovery)
	p.persistDecision(begin)

	if sel, ok := p.recorder.RecordSelection(decisionID, []string{toolName}, inferred, 0.8); ok {
		p.persistDecision(sel)
	}
	if call, ok := p.recorder.RecordToolCall(decisionID, toolName, args); ok {
		p.persistDecision(call)
	}

	promptEvent := mcpmodel.UserPromptEvent{
		Timestamp:      event.Timestamp,
		ConversationID: decisionID,
		Prompt:         inferred,
		Source:         mcpmodel.PromptSourceInferred,
	}
	if err := p.store.Append(streamPrompts, promptEvent); err != nil {
		p.log.Error().Err(err).Msg("failed to persist inferred user prompt")
	}

	contextRecord := mcpmodel.ConversationContext{
		Prompt:           inferred,
		ConversationID:   decisionID,
		MessageTimestamp: event.Timestamp,
		ToolsAvailable:   []string{toolName},
		ToolsSuggested:   []string{toolName},
		HostInterface:    "cursor",
	}
	if err := p.store.Append(streamContext, contextRecord); err != nil {
		p.log.Error().Err(err).Msg("failed to persist conversation context")
	}
}

func (p *Proxy) handleResponse(event *mcpmodel.MCPEvent) {
	decisionID, ok := p.recorder.MostRecentOpen()
	if !ok {
		return
	}
	success := event.ErrorObject() == nil
	reasoning := "Tool execution failed"
	if success {
		reasoning = "Tool execution succeeded"
	}
	if complete, ok := p.recorder.Complete(decisionID, success, reasoning); ok {
		p.persistDecision(complete)
	}
}

func (p *Proxy) persistDecision(ev mcpmodel.LLMDecisionEvent) {
	if err := p.store.Append(streamDecisions, ev); err != nil {
		p.log.Error().Err(err).Msg("failed to persist LLM decision event")
	}
}

func capabilityNames(payload json.RawMessage) []string {
	var m struct {
		Params struct {
			Capabilities map[string]json.RawMessage `json:"capabilities"`
		} `json:"params"`
	}
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil
	}
	names := make([]string, 0, len(m.Params.Capabilities))
	for k := range m.Params.Capabilities {
		names = append(names, k)
	}
	return names
}

func toolArgs(payload json.RawMessage) json.RawMessage {
	var m struct {
		Params struct {
			Arguments json.RawMessage `json:"arguments"`
		} `json:"params"`
	}
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil
	}
	return m.Params.Arguments
}

// HostStdin and HostStdout expose the real process stdio for binaries
// wiring Run directly to fd 0/1 rather than test fixtures.
var (
	HostStdin  io.Reader = os.Stdin
	HostStdout io.Writer = os.Stdout
)
