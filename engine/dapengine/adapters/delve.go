package adapters

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// DelveConfig adds delve's dap-subcommand options on top of the adapter-
// agnostic Config.
type DelveConfig struct {
	Config

	Mode string `json:"mode,omitempty"` // debug, test, exec, core, replay

	BuildFlags string `json:"buildFlags,omitempty"`

	ShowGlobalVariables  bool   `json:"showGlobalVariables,omitempty"`
	ShowRegisters        bool   `json:"showRegisters,omitempty"`
	ShowPprofLabels      bool   `json:"showPprofLabels,omitempty"`
	HideSystemGoroutines bool   `json:"hideSystemGoroutines,omitempty"`
	StackTraceDepth      int    `json:"stackTraceDepth,omitempty"`
	GoroutineFilters     string `json:"goroutineFilters,omitempty"`

	DlvPath string `json:"dlvPath,omitempty"`
	UseAPI2 bool   `json:"useApi2,omitempty"`

	Substitutions map[string]string `json:"substitutePath,omitempty"`

	DebugAdapter string `json:"debugAdapter,omitempty"` // legacy or dlv-dap
	Backend      string `json:"backend,omitempty"`      // default, native, lldb, rr

	Output       string `json:"output,omitempty"`
	CoreFilePath string `json:"coreFilePath,omitempty"`
	TraceDirPath string `json:"traceDirPath,omitempty"`
}

func delveDefaults(cfg DelveConfig) DelveConfig {
	if cfg.Mode == "" {
		cfg.Mode = "debug"
	}
	if cfg.StackTraceDepth == 0 {
		cfg.StackTraceDepth = 50
	}
	if cfg.DebugAdapter == "" {
		cfg.DebugAdapter = "dlv-dap"
	}
	return cfg
}

// DelveAdapter drives `dlv dap`, delve's built-in DAP server, for debugging
// Go programs, tests, and core dumps.
type DelveAdapter struct {
	config DelveConfig
}

// NewDelveAdapter satisfies adapterFactory for Registry; it applies delve's
// defaults on top of a bare Config.
func NewDelveAdapter(base Config) (Adapter, error) {
	return &DelveAdapter{config: delveDefaults(DelveConfig{Config: base})}, nil
}

// NewDelveAdapterWithConfig builds a DelveAdapter from a fully specified
// DelveConfig, filling in only the fields left zero.
func NewDelveAdapterWithConfig(config DelveConfig) (*DelveAdapter, error) {
	return &DelveAdapter{config: delveDefaults(config)}, nil
}

func (a *DelveAdapter) Type() AdapterType { return AdapterDelve }
func (a *DelveAdapter) Name() string      { return "Delve (Go Debugger)" }

func (a *DelveAdapter) Validate() error {
	switch a.config.Request {
	case "launch":
		if a.config.Program == "" {
			return fmt.Errorf("program is required for launch request")
		}
	case "attach":
		if a.config.ProcessID == 0 && a.config.Port == 0 {
			return fmt.Errorf("processId or port is required for attach request")
		}
	case "":
	default:
		return fmt.Errorf("invalid request type: %s", a.config.Request)
	}
	return nil
}

// GetCommand starts `dlv dap`, in socket mode (--listen) if a.config.Port is
// set, otherwise over stdio.
func (a *DelveAdapter) GetCommand() (*exec.Cmd, error) {
	dlvPath := a.config.DlvPath
	if dlvPath == "" {
		var err error
		dlvPath, err = FindExecutable("dlv")
		if err != nil {
			return nil, fmt.Errorf("delve debugger not found: %w (install with: go install github.com/go-delve/delve/cmd/dlv@latest)", err)
		}
	}

	args := []string{"dap"}
	if a.config.Port > 0 {
		args = append(args, "--listen", fmt.Sprintf("%s:%d", a.getHost(), a.config.Port))
	}

	cmd := exec.Command(dlvPath, args...)
	if a.config.Cwd != "" {
		cmd.Dir = a.config.Cwd
	}
	cmd.Env = os.Environ()
	for k, v := range a.config.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	return cmd, nil
}

func (a *DelveAdapter) GetLaunchArgs() (interface{}, error) {
	c := a.config
	args := argSet{
		"mode":        c.Mode,
		"program":     c.Program,
		"stopOnEntry": c.StopOnEntry,
	}
	args.setNonEmptySlice("args", c.Args)
	args.setNonEmpty("cwd", c.Cwd)
	args.setNonEmptyMap("env", c.Env)
	args.setNonEmpty("buildFlags", c.BuildFlags)
	args.setNonEmpty("output", c.Output)
	args.setNonEmpty("backend", c.Backend)
	args.setTrue("showGlobalVariables", c.ShowGlobalVariables)
	args.setTrue("showRegisters", c.ShowRegisters)
	args.setTrue("showPprofLabels", c.ShowPprofLabels)
	args.setTrue("hideSystemGoroutines", c.HideSystemGoroutines)
	args.setNonZero("stackTraceDepth", c.StackTraceDepth)
	args.setNonEmpty("goroutineFilters", c.GoroutineFilters)
	if subs := pathSubstitutions(c.Substitutions); subs != nil {
		args["substitutePath"] = subs
	}

	switch c.Mode {
	case "core":
		args.setNonEmpty("coreFilePath", c.CoreFilePath)
	case "replay":
		args.setNonEmpty("traceDirPath", c.TraceDirPath)
	}

	return args.toMap(), nil
}

func (a *DelveAdapter) GetAttachArgs() (interface{}, error) {
	c := a.config
	args := argSet{
		"mode":        "local",
		"stopOnEntry": c.StopOnEntry,
	}
	args.setNonZero("processId", c.ProcessID)
	args.setNonEmpty("cwd", c.Cwd)
	args.setTrue("showGlobalVariables", c.ShowGlobalVariables)
	args.setTrue("showRegisters", c.ShowRegisters)
	args.setNonZero("stackTraceDepth", c.StackTraceDepth)
	if subs := pathSubstitutions(c.Substitutions); subs != nil {
		args["substitutePath"] = subs
	}
	return args.toMap(), nil
}

func (a *DelveAdapter) GetConnectionType() string {
	if a.config.Port > 0 {
		return "socket"
	}
	return "stdio"
}

func (a *DelveAdapter) GetAddress() string {
	if a.config.Port == 0 {
		return ""
	}
	return a.getHost() + ":" + strconv.Itoa(a.config.Port)
}

func (a *DelveAdapter) getHost() string {
	if a.config.Host != "" {
		return a.config.Host
	}
	return "127.0.0.1"
}

func (a *DelveAdapter) SetMode(mode string)       { a.config.Mode = mode }
func (a *DelveAdapter) SetBuildFlags(flags string) { a.config.BuildFlags = flags }
func (a *DelveAdapter) SetProgram(program string)  { a.config.Program = program }
func (a *DelveAdapter) SetArgs(args []string)      { a.config.Args = args }

// CreateDefaultLaunchConfig returns a ready-to-run "go run"-style launch of
// program under delve.
func CreateDefaultLaunchConfig(program string) DelveConfig {
	return delveDefaults(DelveConfig{
		Config: Config{Type: AdapterDelve, Name: "Launch Go Program", Request: "launch", Program: program},
	})
}

// CreateDefaultTestConfig debugs the tests in testDir, optionally filtered
// to a single test name via `-test.run`.
func CreateDefaultTestConfig(testDir, testName string) DelveConfig {
	cfg := delveDefaults(DelveConfig{
		Config: Config{Type: AdapterDelve, Name: "Debug Go Test", Request: "launch", Program: testDir},
		Mode:   "test",
	})
	if testName != "" {
		cfg.Args = []string{"-test.run", testName}
	}
	return cfg
}

// CreateDefaultAttachConfig attaches delve to an already-running process.
func CreateDefaultAttachConfig(processID int) DelveConfig {
	return delveDefaults(DelveConfig{
		Config: Config{Type: AdapterDelve, Name: "Attach to Process", Request: "attach", ProcessID: processID},
		Mode:   "local",
	})
}
