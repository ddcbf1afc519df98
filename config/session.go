package config

import (
	"fmt"
	"time"

	"github.com/dshills/dbgsession/engine/dapengine/adapters"
	"github.com/dshills/dbgsession/session"
)

// Document is the top-level shape of a debug session configuration file:
// a [session] table and one or more [[adapters]] entries.
type Document struct {
	Session  session.SessionOptions
	Adapters []adapters.Config
}

// LoadDocument reads path as TOML and binds it onto a Document. A missing
// file yields a Document with default session options and no adapters,
// and a nil error, matching Loader.Load's
// "absence is not an error" convention.
func LoadDocument(path string) (Document, error) {
	raw, err := NewTOMLLoader(path).Load()
	if err != nil {
		return Document{}, err
	}
	return bind(raw)
}

func bind(raw map[string]any) (Document, error) {
	doc := Document{Session: session.DefaultSessionOptions()}
	if raw == nil {
		return doc, nil
	}

	if s, ok := raw["session"].(map[string]any); ok {
		if v, ok := s["useOperationThread"].(bool); ok {
			doc.Session.UseOperationThread = v
		}
		if v, ok := s["stepping"].(string); ok {
			switch v {
			case "line":
				doc.Session.Stepping = session.GranularityLine
			case "instruction":
				doc.Session.Stepping = session.GranularityInstruction
			default:
				return Document{}, fmt.Errorf("config: unknown stepping granularity %q", v)
			}
		}
		if eval, ok := s["evaluation"].(map[string]any); ok {
			if v, ok := eval["timeoutMs"].(int64); ok {
				doc.Session.Evaluation.Timeout = time.Duration(v) * time.Millisecond
			}
			if v, ok := eval["allowMethodInvoke"].(bool); ok {
				doc.Session.Evaluation.AllowMethodInvoke = v
			}
			if v, ok := eval["memberVisibility"].(string); ok {
				doc.Session.Evaluation.MemberVisibility = v
			}
		}
		if attach, ok := s["attach"].(map[string]any); ok {
			if v, ok := attach["requireDebugSymbols"].(bool); ok {
				doc.Session.Attach.RequireDebugSymbols = v
			}
			if v, ok := attach["suspendOnAttach"].(bool); ok {
				doc.Session.Attach.SuspendOnAttach = v
			}
		}
	}

	entries, _ := raw["adapters"].([]any)
	for i, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			return Document{}, fmt.Errorf("config: adapters[%d] is not a table", i)
		}
		cfg, err := bindAdapter(m)
		if err != nil {
			return Document{}, fmt.Errorf("config: adapters[%d]: %w", i, err)
		}
		doc.Adapters = append(doc.Adapters, cfg)
	}

	// A single [adapter] table is accepted alongside [[adapters]] for the
	// common single-target case.
	if single, ok := raw["adapter"].(map[string]any); ok {
		cfg, err := bindAdapter(single)
		if err != nil {
			return Document{}, fmt.Errorf("config: adapter: %w", err)
		}
		doc.Adapters = append(doc.Adapters, cfg)
	}

	return doc, nil
}

func bindAdapter(m map[string]any) (adapters.Config, error) {
	cfg := adapters.Config{Request: "launch"}

	if v, ok := m["type"].(string); ok {
		cfg.Type = adapters.AdapterType(v)
	}
	if cfg.Type == "" {
		return cfg, fmt.Errorf("type is required")
	}
	if v, ok := m["name"].(string); ok {
		cfg.Name = v
	}
	if v, ok := m["request"].(string); ok {
		cfg.Request = v
	}
	if v, ok := m["program"].(string); ok {
		cfg.Program = v
	}
	if v, ok := m["module"].(string); ok {
		cfg.Module = v
	}
	if v, ok := m["cwd"].(string); ok {
		cfg.Cwd = v
	}
	if v, ok := m["host"].(string); ok {
		cfg.Host = v
	}
	if v, ok := m["processId"].(int64); ok {
		cfg.ProcessID = int(v)
	}
	if v, ok := m["adapterPath"].(string); ok {
		cfg.AdapterPath = v
	}
	if v, ok := m["stopOnEntry"].(bool); ok {
		cfg.StopOnEntry = v
	}
	if v, ok := m["port"].(int64); ok {
		cfg.Port = int(v)
	}
	if list, ok := m["args"].([]any); ok {
		for _, a := range list {
			if s, ok := a.(string); ok {
				cfg.Args = append(cfg.Args, s)
			}
		}
	}
	if list, ok := m["adapterArgs"].([]any); ok {
		for _, a := range list {
			if s, ok := a.(string); ok {
				cfg.AdapterArgs = append(cfg.AdapterArgs, s)
			}
		}
	}
	if env, ok := m["env"].(map[string]any); ok {
		cfg.Env = make(map[string]string, len(env))
		for k, v := range env {
			if s, ok := v.(string); ok {
				cfg.Env[k] = s
			}
		}
	}

	return cfg, nil
}
