// Package configrewriter implements the config rewriter (C3): it detects
// whether an MCP server entry already points at this module's proxy binary,
// rewrites a server entry to route through the proxy, restores a saved
// backup, and unwraps a chain of nested proxy entries back to the real
// target command. The document's top level is held as
// map[string]json.RawMessage, so unrelated top-level keys in the host's
// mcp.json keep their values; the rewritten file is re-indented with its
// keys sorted, and entries under mcpServers are decoded into ServerEntry, so
// fields other than command, args, cwd and env are not kept.
package configrewriter

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"mcpaudit/internal/mcperrors"
)

var (
	errNoMCPServers   = errors.New("config has no mcpServers block")
	errServerNotFound = errors.New("server not found in mcpServers")
	errAlreadyProxied = errors.New("server is already proxied")
)

// ServerEntry is one server's configuration block under "mcpServers".
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// IsAlreadyProxied reports whether entry's command/args already route
// through this module's proxy binary, guarding against double-wrapping a
// server that's already instrumented.
func IsAlreadyProxied(entry ServerEntry) bool {
	return isProxyCommand(entry)
}

func isProxyCommand(entry ServerEntry) bool {
	return len(entry.Args) >= 2 && entry.Args[0] == "--target-command"
}

// BuildProxyEntry constructs the server entry that routes through the
// proxy binary, wrapping the original command/args the same way the proxy
// peels them back off in UnwrapRecursive.
func BuildProxyEntry(proxyBinaryPath string, original ServerEntry, serverName string) ServerEntry {
	args := append([]string{"--target-command", original.Command, "--target-args"}, original.Args...)
	cwd := original.Cwd
	return ServerEntry{
		Command: proxyBinaryPath,
		Args:    args,
		Cwd:     cwd,
		Env: map[string]string{
			"MCP_TARGET_CWD":  cwd,
			"MCP_SERVER_NAME": serverName,
		},
	}
}

// Install rewrites the named server's entry in the mcp.json file at path to
// route through proxyBinaryPath, returning an error tagged
// mcperrors.KindAlreadyProxied if it already does. The prior file content
// is preserved at path+".backup" before the rewrite, and the rewrite itself
// is atomic: a temp file is written then renamed over the original so a
// crash mid-write never leaves a half-written config.
func Install(path, serverName, proxyBinaryPath string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return mcperrors.New(mcperrors.KindIO, "configrewriter.Install", err)
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(raw, &root); err != nil {
		return mcperrors.New(mcperrors.KindParse, "configrewriter.Install", err)
	}

	serversRaw, ok := root["mcpServers"]
	if !ok {
		return mcperrors.New(mcperrors.KindNotFound, "configrewriter.Install", errNoMCPServers)
	}
	var servers map[string]ServerEntry
	if err := json.Unmarshal(serversRaw, &servers); err != nil {
		return mcperrors.New(mcperrors.KindParse, "configrewriter.Install", err)
	}

	original, ok := servers[serverName]
	if !ok {
		return mcperrors.New(mcperrors.KindNotFound, "configrewriter.Install", errServerNotFound)
	}
	if isProxyCommand(original) {
		return mcperrors.New(mcperrors.KindAlreadyProxied, "configrewriter.Install", errAlreadyProxied)
	}

	if err := writeBackup(path, raw); err != nil {
		return err
	}

	servers[serverName] = BuildProxyEntry(proxyBinaryPath, original, serverName)

	newServersRaw, err := json.Marshal(servers)
	if err != nil {
		return mcperrors.New(mcperrors.KindParse, "configrewriter.Install", err)
	}
	root["mcpServers"] = newServersRaw

	return atomicWriteJSON(path, root)
}

// Restore copies the backup file saved by Install back over path.
func Restore(path string) error {
	backupPath := path + ".backup"
	raw, err := os.ReadFile(backupPath)
	if err != nil {
		return mcperrors.New(mcperrors.KindIO, "configrewriter.Restore", err)
	}
	return atomicWriteBytes(path, raw)
}

// UnwrapRecursive peels repeated proxy wrapping off command/args until it
// reaches a non-proxy target, returning the real command, its args, and how
// many layers were unwrapped. A config that was proxied, then proxied
// again by a second run of Install, ends up here - this keeps the chain
// from growing unbounded across repeated installs.
func UnwrapRecursive(command string, args []string) (string, []string, int) {
	depth := 0
	currentCommand := command
	currentArgs := args

	for isProxyCommand(ServerEntry{Command: currentCommand, Args: currentArgs}) {
		depth++

		targetCmdIdx := indexOf(currentArgs, "--target-command")
		targetArgsIdx := indexOf(currentArgs, "--target-args")
		if targetCmdIdx < 0 || targetArgsIdx < 0 || targetCmdIdx+1 >= len(currentArgs) {
			return currentCommand, currentArgs, depth
		}

		originalCommand := currentArgs[targetCmdIdx+1]
		var originalArgs []string
		if targetArgsIdx+1 <= len(currentArgs) {
			originalArgs = currentArgs[targetArgsIdx+1:]
		}

		currentCommand = originalCommand
		currentArgs = originalArgs
	}

	return currentCommand, currentArgs, depth
}

func indexOf(args []string, target string) int {
	for i, a := range args {
		if a == target {
			return i
		}
	}
	return -1
}

func writeBackup(path string, raw []byte) error {
	return atomicWriteBytes(path+".backup", raw)
}

func atomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcperrors.New(mcperrors.KindParse, "configrewriter.atomicWriteJSON", err)
	}
	return atomicWriteBytes(path, data)
}

func atomicWriteBytes(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".mcpaudit-config-*.tmp")
	if err != nil {
		return mcperrors.New(mcperrors.KindIO, "configrewriter.atomicWriteBytes", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return mcperrors.New(mcperrors.KindIO, "configrewriter.atomicWriteBytes", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return mcperrors.New(mcperrors.KindIO, "configrewriter.atomicWriteBytes", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return mcperrors.New(mcperrors.KindIO, "configrewriter.atomicWriteBytes", err)
	}
	return nil
}
