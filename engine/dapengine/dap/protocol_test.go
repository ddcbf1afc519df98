package dap

import (
	"encoding/json"
	"testing"
)

// decodeToMap marshals v and decodes it back into a generic map, so a test
// can assert on the wire field names DAP actually requires (camelCase,
// underscored request_seq) without needing a second typed struct.
func decodeToMap(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestEnvelopeFieldsPromoteThroughRequest(t *testing.T) {
	req := Request{
		Envelope:  Envelope{Seq: 1, Type: "request"},
		Command:   "initialize",
		Arguments: json.RawMessage(`{"adapterID": "go"}`),
	}

	parsed := decodeToMap(t, req)
	if parsed["seq"].(float64) != 1 {
		t.Errorf("seq = %v, want 1", parsed["seq"])
	}
	if parsed["type"] != "request" {
		t.Errorf("type = %v, want request", parsed["type"])
	}
	if parsed["command"] != "initialize" {
		t.Errorf("command = %v, want initialize", parsed["command"])
	}
}

func TestResponseMarshalsRequestSeqAsSnakeCase(t *testing.T) {
	resp := Response{
		Envelope:   Envelope{Seq: 2, Type: "response"},
		RequestSeq: 1,
		Success:    true,
		Command:    "initialize",
		Body:       json.RawMessage(`{"supportsConfigurationDoneRequest": true}`),
	}

	parsed := decodeToMap(t, resp)
	if parsed["request_seq"].(float64) != 1 {
		t.Errorf("request_seq = %v, want 1", parsed["request_seq"])
	}
	if parsed["success"] != true {
		t.Error("success = false, want true")
	}
}

func TestEventMarshalsEventName(t *testing.T) {
	evt := Event{
		Envelope: Envelope{Seq: 3, Type: "event"},
		Event:    "stopped",
		Body:     json.RawMessage(`{"reason": "breakpoint", "threadId": 1}`),
	}

	parsed := decodeToMap(t, evt)
	if parsed["event"] != "stopped" {
		t.Errorf("event = %v, want stopped", parsed["event"])
	}
}

func TestCapabilitiesUnmarshalsSupportsFlags(t *testing.T) {
	const data = `{
		"supportsConfigurationDoneRequest": true,
		"supportsFunctionBreakpoints": true,
		"supportsConditionalBreakpoints": true,
		"supportsEvaluateForHovers": true,
		"supportsStepBack": false
	}`

	var caps Capabilities
	if err := json.Unmarshal([]byte(data), &caps); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for name, got := range map[string]bool{
		"SupportsConfigurationDoneRequest": caps.SupportsConfigurationDoneRequest,
		"SupportsFunctionBreakpoints":      caps.SupportsFunctionBreakpoints,
		"SupportsConditionalBreakpoints":   caps.SupportsConditionalBreakpoints,
		"SupportsEvaluateForHovers":        caps.SupportsEvaluateForHovers,
	} {
		if !got {
			t.Errorf("%s = false, want true", name)
		}
	}
	if caps.SupportsStepBack {
		t.Error("SupportsStepBack = true, want false")
	}
}

func TestStoppedEventBodyUnmarshalsThreadAndBreakpointIDs(t *testing.T) {
	const data = `{
		"reason": "breakpoint",
		"threadId": 1,
		"allThreadsStopped": true,
		"hitBreakpointIds": [1, 2]
	}`

	var body StoppedEventBody
	if err := json.Unmarshal([]byte(data), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Reason != "breakpoint" || body.ThreadID != 1 {
		t.Errorf("reason/threadID = %q/%d", body.Reason, body.ThreadID)
	}
	if !body.AllThreadsStopped {
		t.Error("allThreadsStopped = false, want true")
	}
	if len(body.HitBreakpointIds) != 2 {
		t.Errorf("len(hitBreakpointIds) = %d, want 2", len(body.HitBreakpointIds))
	}
}

func TestStackFrameUnmarshalsNestedSource(t *testing.T) {
	const data = `{
		"id": 1000,
		"name": "main.main",
		"source": {"name": "main.go", "path": "/home/user/project/main.go"},
		"line": 42,
		"column": 1
	}`

	var frame StackFrame
	if err := json.Unmarshal([]byte(data), &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.ID != 1000 || frame.Name != "main.main" {
		t.Errorf("id/name = %d/%q", frame.ID, frame.Name)
	}
	if frame.Source == nil {
		t.Fatal("source is nil")
	}
	if frame.Source.Path != "/home/user/project/main.go" {
		t.Errorf("source.path = %q", frame.Source.Path)
	}
	if frame.Line != 42 {
		t.Errorf("line = %d, want 42", frame.Line)
	}
}

func TestVariableUnmarshal(t *testing.T) {
	const data = `{"name": "x", "value": "42", "type": "int", "variablesReference": 0}`

	var v Variable
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.Name != "x" || v.Value != "42" || v.Type != "int" {
		t.Errorf("unexpected variable: %+v", v)
	}
	if v.VariablesReference != 0 {
		t.Errorf("variablesReference = %d, want 0", v.VariablesReference)
	}
}

func TestBreakpointMarshalsVerdictFields(t *testing.T) {
	bp := Breakpoint{ID: 1, Verified: true, Line: 10, Source: &Source{Path: "/path/to/file.go"}}

	parsed := decodeToMap(t, bp)
	if parsed["id"].(float64) != 1 {
		t.Errorf("id = %v, want 1", parsed["id"])
	}
	if parsed["verified"] != true {
		t.Error("verified = false, want true")
	}
	if parsed["line"].(float64) != 10 {
		t.Errorf("line = %v, want 10", parsed["line"])
	}
}

func TestSourceBreakpointMarshalsConditionAndLogMessage(t *testing.T) {
	bp := SourceBreakpoint{
		Line:         25,
		Column:       5,
		Condition:    "x > 10",
		HitCondition: "3",
		LogMessage:   "x = {x}",
	}

	parsed := decodeToMap(t, bp)
	if parsed["line"].(float64) != 25 {
		t.Errorf("line = %v, want 25", parsed["line"])
	}
	if parsed["condition"] != "x > 10" {
		t.Errorf("condition = %v, want %q", parsed["condition"], "x > 10")
	}
	if parsed["logMessage"] != "x = {x}" {
		t.Errorf("logMessage = %v, want %q", parsed["logMessage"], "x = {x}")
	}
}

func TestOutputEventBodyUnmarshalsSourceAndLine(t *testing.T) {
	const data = `{
		"category": "stdout",
		"output": "Hello, World!\n",
		"source": {"path": "/path/to/file.go"},
		"line": 10
	}`

	var body OutputEventBody
	if err := json.Unmarshal([]byte(data), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Category != "stdout" {
		t.Errorf("category = %q, want stdout", body.Category)
	}
	if body.Output != "Hello, World!\n" {
		t.Errorf("output = %q", body.Output)
	}
	if body.Source == nil {
		t.Fatal("source is nil")
	}
	if body.Line != 10 {
		t.Errorf("line = %d, want 10", body.Line)
	}
}

func TestInitializeRequestArgumentsMarshalsClientFields(t *testing.T) {
	args := InitializeRequestArguments{
		ClientID:        "vscode",
		ClientName:      "Visual Studio Code",
		AdapterID:       "go",
		LinesStartAt1:   true,
		ColumnsStartAt1: true,
		PathFormat:      "path",
	}

	parsed := decodeToMap(t, args)
	if parsed["clientID"] != "vscode" {
		t.Errorf("clientID = %v, want vscode", parsed["clientID"])
	}
	if parsed["adapterID"] != "go" {
		t.Errorf("adapterID = %v, want go", parsed["adapterID"])
	}
	if parsed["linesStartAt1"] != true {
		t.Error("linesStartAt1 = false, want true")
	}
	if parsed["pathFormat"] != "path" {
		t.Errorf("pathFormat = %v, want path", parsed["pathFormat"])
	}
}
