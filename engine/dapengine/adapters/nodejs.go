package adapters

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

const defaultNodeInspectPort = 9229

// NodeJSConfig adds the vscode-js-debug-style options the Node inspector
// bridge understands, on top of the adapter-agnostic Config.
type NodeJSConfig struct {
	Config

	RuntimeExecutable string   `json:"runtimeExecutable,omitempty"`
	RuntimeArgs       []string `json:"runtimeArgs,omitempty"`

	Console string `json:"console,omitempty"` // internalConsole, integratedTerminal, externalTerminal

	SourceMaps bool     `json:"sourceMaps,omitempty"`
	OutFiles   []string `json:"outFiles,omitempty"`
	SkipFiles  []string `json:"skipFiles,omitempty"`

	Trace     bool `json:"trace,omitempty"`
	SmartStep bool `json:"smartStep,omitempty"`
	Restart   bool `json:"restart,omitempty"`

	LocalRoot  string `json:"localRoot,omitempty"`
	RemoteRoot string `json:"remoteRoot,omitempty"`

	Protocol string `json:"protocol,omitempty"` // auto, inspector, legacy
	Timeout  int    `json:"timeout,omitempty"`  // ms to wait for the debuggee to connect

	ResolveSourceMapLocations []string `json:"resolveSourceMapLocations,omitempty"`
	AutoAttachChildProcesses  bool     `json:"autoAttachChildProcesses,omitempty"`
	ShowAsyncStacks           bool     `json:"showAsyncStacks,omitempty"`
}

func nodeDefaults(cfg NodeJSConfig) NodeJSConfig {
	if cfg.Console == "" {
		cfg.Console = "internalConsole"
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "inspector"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10000
	}
	return cfg
}

// NodeJSAdapter drives node's built-in inspector protocol for debugging
// JavaScript and (via source maps) TypeScript.
type NodeJSAdapter struct {
	config NodeJSConfig
}

// NewNodeJSAdapter satisfies adapterFactory for Registry.
func NewNodeJSAdapter(base Config) (Adapter, error) {
	return &NodeJSAdapter{config: nodeDefaults(NodeJSConfig{Config: base, SourceMaps: true, SmartStep: true})}, nil
}

// NewNodeJSAdapterWithConfig builds a NodeJSAdapter from a fully specified
// NodeJSConfig, filling in only the fields left zero.
func NewNodeJSAdapterWithConfig(config NodeJSConfig) (*NodeJSAdapter, error) {
	return &NodeJSAdapter{config: nodeDefaults(config)}, nil
}

func (a *NodeJSAdapter) Type() AdapterType { return AdapterNodeJS }
func (a *NodeJSAdapter) Name() string      { return "Node.js Debugger" }

func (a *NodeJSAdapter) Validate() error {
	switch a.config.Request {
	case "launch":
		if a.config.Program == "" {
			return fmt.Errorf("program is required for launch request")
		}
	case "attach":
		if a.config.Port == 0 {
			return fmt.Errorf("port is required for attach request")
		}
	case "":
	default:
		return fmt.Errorf("invalid request type: %s", a.config.Request)
	}
	return nil
}

// GetCommand starts node with --inspect (or --inspect-brk if StopOnEntry),
// listening on the configured port for the DAP-to-inspector bridge to
// attach to.
func (a *NodeJSAdapter) GetCommand() (*exec.Cmd, error) {
	runtime := a.config.RuntimeExecutable
	if runtime == "" {
		var err error
		runtime, err = FindExecutable("node")
		if err != nil {
			return nil, fmt.Errorf("node.js runtime not found: %w (install from https://nodejs.org/)", err)
		}
	}

	inspectFlag := "--inspect"
	if a.config.StopOnEntry {
		inspectFlag = "--inspect-brk"
	}

	var args []string
	args = append(args, a.config.RuntimeArgs...)
	args = append(args, fmt.Sprintf("%s=%d", inspectFlag, a.getPort()))
	args = append(args, a.config.Program)
	args = append(args, a.config.Args...)

	cmd := exec.Command(runtime, args...)
	if a.config.Cwd != "" {
		cmd.Dir = a.config.Cwd
	}
	cmd.Env = os.Environ()
	for k, v := range a.config.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	return cmd, nil
}

func (a *NodeJSAdapter) GetLaunchArgs() (interface{}, error) {
	c := a.config
	args := argSet{
		"type":        "node",
		"request":     "launch",
		"program":     c.Program,
		"stopOnEntry": c.StopOnEntry,
		"sourceMaps":  c.SourceMaps,
		"smartStep":   c.SmartStep,
		"console":     c.Console,
		"protocol":    c.Protocol,
	}
	args.setNonEmptySlice("args", c.Args)
	args.setNonEmpty("cwd", c.Cwd)
	args.setNonEmptyMap("env", c.Env)
	args.setNonEmpty("runtimeExecutable", c.RuntimeExecutable)
	args.setNonEmptySlice("runtimeArgs", c.RuntimeArgs)
	args.setNonEmptySlice("outFiles", c.OutFiles)
	args.setNonEmptySlice("skipFiles", c.SkipFiles)
	args.setTrue("trace", c.Trace)
	args.setTrue("restart", c.Restart)
	args.setNonEmptySlice("resolveSourceMapLocations", c.ResolveSourceMapLocations)
	args.setTrue("autoAttachChildProcesses", c.AutoAttachChildProcesses)
	args.setTrue("showAsyncStacks", c.ShowAsyncStacks)
	args.setNonZero("timeout", c.Timeout)
	return args.toMap(), nil
}

func (a *NodeJSAdapter) GetAttachArgs() (interface{}, error) {
	c := a.config
	args := argSet{
		"type":       "node",
		"request":    "attach",
		"port":       c.Port,
		"sourceMaps": c.SourceMaps,
		"smartStep":  c.SmartStep,
		"protocol":   c.Protocol,
	}
	args.setNonEmpty("address", c.Host)
	args.setNonZero("processId", c.ProcessID)
	args.setNonEmpty("localRoot", c.LocalRoot)
	args.setNonEmpty("remoteRoot", c.RemoteRoot)
	args.setNonEmptySlice("skipFiles", c.SkipFiles)
	args.setTrue("trace", c.Trace)
	args.setNonZero("timeout", c.Timeout)
	return args.toMap(), nil
}

// GetConnectionType is always "socket": the inspector protocol has no stdio
// transport.
func (a *NodeJSAdapter) GetConnectionType() string { return "socket" }

func (a *NodeJSAdapter) GetAddress() string {
	return a.getHost() + ":" + strconv.Itoa(a.getPort())
}

func (a *NodeJSAdapter) getHost() string {
	if a.config.Host != "" {
		return a.config.Host
	}
	return "127.0.0.1"
}

func (a *NodeJSAdapter) getPort() int {
	if a.config.Port > 0 {
		return a.config.Port
	}
	return defaultNodeInspectPort
}

func (a *NodeJSAdapter) SetProgram(program string)  { a.config.Program = program }
func (a *NodeJSAdapter) SetArgs(args []string)      { a.config.Args = args }
func (a *NodeJSAdapter) SetSourceMaps(enabled bool) { a.config.SourceMaps = enabled }

// CreateDefaultNodeLaunchConfig returns a ready-to-run launch of program
// under node's inspector.
func CreateDefaultNodeLaunchConfig(program string) NodeJSConfig {
	return nodeDefaults(NodeJSConfig{
		Config:     Config{Type: AdapterNodeJS, Name: "Launch Node.js", Request: "launch", Program: program},
		SourceMaps: true,
		SmartStep:  true,
	})
}

// CreateDefaultNodeAttachConfig attaches to an already-listening inspector
// on port.
func CreateDefaultNodeAttachConfig(port int) NodeJSConfig {
	return nodeDefaults(NodeJSConfig{
		Config:     Config{Type: AdapterNodeJS, Name: "Attach to Node.js", Request: "attach", Port: port},
		SourceMaps: true,
		SmartStep:  true,
	})
}

// CreateTypeScriptLaunchConfig launches program (compiled output under
// outDir) with source maps and node_internals frames skipped, the shape a
// ts-node or tsc-watch setup needs.
func CreateTypeScriptLaunchConfig(program, outDir string) NodeJSConfig {
	cfg := CreateDefaultNodeLaunchConfig(program)
	cfg.Name = "Launch TypeScript"
	cfg.OutFiles = []string{outDir + "/**/*.js"}
	cfg.SkipFiles = []string{"<node_internals>/**"}
	return cfg
}
