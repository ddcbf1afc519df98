package adapters

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// PythonConfig adds debugpy's options on top of the adapter-agnostic
// Config.
type PythonConfig struct {
	Config

	PythonPath string `json:"pythonPath,omitempty"`
	Console    string `json:"console,omitempty"` // internalConsole, integratedTerminal, externalTerminal

	JustMyCode bool `json:"justMyCode,omitempty"`

	// Framework-specific template/debugging hooks debugpy supports.
	Django        bool `json:"django,omitempty"`
	Jinja         bool `json:"jinja,omitempty"`
	Flask         bool `json:"flask,omitempty"`
	Pyramid       bool `json:"pyramid,omitempty"`
	GeventSupport bool `json:"gevent,omitempty"`

	Sudo            bool `json:"sudo,omitempty"`
	RedirectOutput  bool `json:"redirectOutput,omitempty"`
	ShowReturnValue bool `json:"showReturnValue,omitempty"`
	SubProcess      bool `json:"subProcess,omitempty"`

	DebugpyPath  string        `json:"debugpyPath,omitempty"`
	PathMappings []PathMapping `json:"pathMappings,omitempty"`
	LogToFile    bool          `json:"logToFile,omitempty"`
}

// PathMapping maps a local source root to where the remote interpreter
// sees it, for attach-to-remote-process debugging.
type PathMapping struct {
	LocalRoot  string `json:"localRoot"`
	RemoteRoot string `json:"remoteRoot"`
}

func pythonDefaults(cfg PythonConfig) PythonConfig {
	if cfg.Console == "" {
		cfg.Console = "internalConsole"
	}
	return cfg
}

// PythonAdapter drives debugpy, the reference DAP server for CPython.
type PythonAdapter struct {
	config PythonConfig
}

// NewPythonAdapter satisfies adapterFactory for Registry.
func NewPythonAdapter(base Config) (Adapter, error) {
	return &PythonAdapter{config: pythonDefaults(PythonConfig{
		Config: base, JustMyCode: true, RedirectOutput: true, ShowReturnValue: true,
	})}, nil
}

// NewPythonAdapterWithConfig builds a PythonAdapter from a fully specified
// PythonConfig, filling in only the fields left zero.
func NewPythonAdapterWithConfig(config PythonConfig) (*PythonAdapter, error) {
	return &PythonAdapter{config: pythonDefaults(config)}, nil
}

func (a *PythonAdapter) Type() AdapterType { return AdapterPython }
func (a *PythonAdapter) Name() string      { return "Python Debugger (debugpy)" }

func (a *PythonAdapter) Validate() error {
	switch a.config.Request {
	case "launch":
		if a.config.Program == "" && a.config.Module == "" {
			return fmt.Errorf("program or module is required for launch request")
		}
	case "attach":
		if a.config.Port == 0 && a.config.ProcessID == 0 {
			return fmt.Errorf("port or processId is required for attach request")
		}
	case "":
	default:
		return fmt.Errorf("invalid request type: %s", a.config.Request)
	}
	return nil
}

// GetCommand starts `python -m debugpy.adapter`, debugpy's own DAP server
// process, in socket mode when a.config.Port is set.
func (a *PythonAdapter) GetCommand() (*exec.Cmd, error) {
	python := a.config.PythonPath
	if python == "" {
		var err error
		python, err = FindExecutable("python3")
		if err != nil {
			python, err = FindExecutable("python")
			if err != nil {
				return nil, fmt.Errorf("python interpreter not found in PATH (install Python 3 and debugpy: pip install debugpy)")
			}
		}
	}

	args := []string{"-m", "debugpy.adapter"}
	if a.config.Port > 0 {
		args = append(args, "--host", a.getHost(), "--port", strconv.Itoa(a.config.Port))
	}

	cmd := exec.Command(python, args...)
	if a.config.Cwd != "" {
		cmd.Dir = a.config.Cwd
	}
	cmd.Env = os.Environ()
	for k, v := range a.config.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	return cmd, nil
}

func (a *PythonAdapter) GetLaunchArgs() (interface{}, error) {
	c := a.config
	args := argSet{
		"type":           "python",
		"request":        "launch",
		"stopOnEntry":    c.StopOnEntry,
		"justMyCode":     c.JustMyCode,
		"console":        c.Console,
		"redirectOutput": c.RedirectOutput,
	}
	args.setNonEmpty("program", c.Program)
	args.setNonEmpty("module", c.Module)
	args.setNonEmptySlice("args", c.Args)
	args.setNonEmpty("cwd", c.Cwd)
	args.setNonEmptyMap("env", c.Env)
	args.setNonEmpty("pythonPath", c.PythonPath)
	args.setTrue("django", c.Django)
	args.setTrue("jinja", c.Jinja)
	args.setTrue("flask", c.Flask)
	args.setTrue("pyramid", c.Pyramid)
	args.setTrue("gevent", c.GeventSupport)
	args.setTrue("sudo", c.Sudo)
	args.setTrue("showReturnValue", c.ShowReturnValue)
	args.setTrue("subProcess", c.SubProcess)
	args.setTrue("logToFile", c.LogToFile)
	return args.toMap(), nil
}

func (a *PythonAdapter) GetAttachArgs() (interface{}, error) {
	c := a.config
	args := argSet{
		"type":           "python",
		"request":        "attach",
		"justMyCode":     c.JustMyCode,
		"redirectOutput": c.RedirectOutput,
	}
	if c.Port > 0 {
		args["connect"] = map[string]interface{}{"host": a.getHost(), "port": c.Port}
	}
	args.setNonZero("processId", c.ProcessID)
	if mappings := pathMappingList(c.PathMappings); mappings != nil {
		args["pathMappings"] = mappings
	}
	args.setTrue("django", c.Django)
	args.setTrue("jinja", c.Jinja)
	args.setTrue("showReturnValue", c.ShowReturnValue)
	args.setTrue("subProcess", c.SubProcess)
	return args.toMap(), nil
}

func pathMappingList(mappings []PathMapping) []map[string]string {
	if len(mappings) == 0 {
		return nil
	}
	out := make([]map[string]string, len(mappings))
	for i, m := range mappings {
		out[i] = map[string]string{"localRoot": m.LocalRoot, "remoteRoot": m.RemoteRoot}
	}
	return out
}

func (a *PythonAdapter) GetConnectionType() string {
	if a.config.Port > 0 {
		return "socket"
	}
	return "stdio"
}

func (a *PythonAdapter) GetAddress() string {
	if a.config.Port == 0 {
		return ""
	}
	return a.getHost() + ":" + strconv.Itoa(a.config.Port)
}

func (a *PythonAdapter) getHost() string {
	if a.config.Host != "" {
		return a.config.Host
	}
	return "127.0.0.1"
}

func (a *PythonAdapter) SetProgram(program string)  { a.config.Program = program }
func (a *PythonAdapter) SetModule(module string)    { a.config.Module = module }
func (a *PythonAdapter) SetArgs(args []string)      { a.config.Args = args }
func (a *PythonAdapter) SetJustMyCode(enabled bool) { a.config.JustMyCode = enabled }

// CreateDefaultPythonLaunchConfig returns a ready-to-run launch of program
// under debugpy.
func CreateDefaultPythonLaunchConfig(program string) PythonConfig {
	return pythonDefaults(PythonConfig{
		Config:          Config{Type: AdapterPython, Name: "Launch Python", Request: "launch", Program: program},
		JustMyCode:      true,
		RedirectOutput:  true,
		ShowReturnValue: true,
	})
}

// CreateDefaultPythonAttachConfig attaches to a debugpy adapter already
// listening on port.
func CreateDefaultPythonAttachConfig(port int) PythonConfig {
	return pythonDefaults(PythonConfig{
		Config:          Config{Type: AdapterPython, Name: "Attach to Python", Request: "attach", Port: port},
		JustMyCode:      true,
		RedirectOutput:  true,
		ShowReturnValue: true,
	})
}

// CreateDjangoLaunchConfig debugs a Django project's manage.py runserver,
// with reload disabled so debugpy doesn't lose the debuggee process.
func CreateDjangoLaunchConfig(managePy string) PythonConfig {
	cfg := CreateDefaultPythonLaunchConfig(managePy)
	cfg.Name = "Launch Django"
	cfg.Console = "integratedTerminal"
	cfg.Django = true
	cfg.Args = []string{"runserver", "--noreload"}
	return cfg
}

// CreateFlaskLaunchConfig debugs a Flask app via `python -m flask run`,
// with the reloader and interactive debugger disabled.
func CreateFlaskLaunchConfig(appFile string) PythonConfig {
	cfg := pythonDefaults(PythonConfig{
		Config: Config{
			Type:    AdapterPython,
			Name:    "Launch Flask",
			Request: "launch",
			Module:  "flask",
			Args:    []string{"run", "--no-debugger", "--no-reload"},
			Env:     map[string]string{"FLASK_APP": appFile},
		},
		JustMyCode:      true,
		RedirectOutput:  true,
		ShowReturnValue: true,
	})
	cfg.Console = "integratedTerminal"
	cfg.Flask = true
	cfg.Jinja = true
	return cfg
}

// CreatePytestLaunchConfig debugs a pytest run, with JustMyCode off so
// stepping can enter pytest's own frames.
func CreatePytestLaunchConfig(testPath string) PythonConfig {
	cfg := pythonDefaults(PythonConfig{
		Config:          Config{Type: AdapterPython, Name: "Debug pytest", Request: "launch", Module: "pytest", Args: []string{testPath, "-v"}},
		RedirectOutput:  true,
		ShowReturnValue: true,
	})
	cfg.Console = "integratedTerminal"
	return cfg
}
