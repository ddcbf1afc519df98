package dap

import "encoding/json"

// Envelope is the seq/type pair every DAP message carries, regardless of
// whether it turns out to be a request, response, or event.
type Envelope struct {
	Seq  int    `json:"seq"`
	Type string `json:"type"` // "request", "response", "event"
}

// Request is an outbound command addressed to the debug adapter.
type Request struct {
	Envelope
	Command   string          `json:"command"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Response answers a Request by RequestSeq; Success false means Message
// carries a human-readable failure reason and Body is unset.
type Response struct {
	Envelope
	RequestSeq int             `json:"request_seq"`
	Success    bool            `json:"success"`
	Command    string          `json:"command"`
	Message    string          `json:"message,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Event is an unsolicited notification pushed by the adapter.
type Event struct {
	Envelope
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// ErrorResponse is a Response shape specific to failed requests that want
// to carry structured error detail rather than just a message string.
type ErrorResponse struct {
	Response
	Body struct {
		Error *ErrorMessage `json:"error,omitempty"`
	} `json:"body,omitempty"`
}

// ErrorMessage is a formatted, possibly-templated adapter error.
type ErrorMessage struct {
	ID        int               `json:"id"`
	Format    string            `json:"format"`
	Variables map[string]string `json:"variables,omitempty"`
}

// Capabilities is what the adapter reports it can do in response to
// initialize; callers should check the relevant Supports* flag before
// sending an optional request (e.g. SupportsSetVariable before SetVariable).
type Capabilities struct {
	SupportsConfigurationDoneRequest      bool `json:"supportsConfigurationDoneRequest,omitempty"`
	SupportsFunctionBreakpoints           bool `json:"supportsFunctionBreakpoints,omitempty"`
	SupportsConditionalBreakpoints        bool `json:"supportsConditionalBreakpoints,omitempty"`
	SupportsHitConditionalBreakpoints     bool `json:"supportsHitConditionalBreakpoints,omitempty"`
	SupportsEvaluateForHovers             bool `json:"supportsEvaluateForHovers,omitempty"`
	SupportsStepBack                      bool `json:"supportsStepBack,omitempty"`
	SupportsSetVariable                   bool `json:"supportsSetVariable,omitempty"`
	SupportsRestartFrame                  bool `json:"supportsRestartFrame,omitempty"`
	SupportsGotoTargetsRequest            bool `json:"supportsGotoTargetsRequest,omitempty"`
	SupportsStepInTargetsRequest          bool `json:"supportsStepInTargetsRequest,omitempty"`
	SupportsCompletionsRequest            bool `json:"supportsCompletionsRequest,omitempty"`
	SupportsModulesRequest                bool `json:"supportsModulesRequest,omitempty"`
	SupportsRestartRequest                bool `json:"supportsRestartRequest,omitempty"`
	SupportsExceptionOptions              bool `json:"supportsExceptionOptions,omitempty"`
	SupportsValueFormattingOptions        bool `json:"supportsValueFormattingOptions,omitempty"`
	SupportsExceptionInfoRequest          bool `json:"supportsExceptionInfoRequest,omitempty"`
	SupportTerminateDebuggee              bool `json:"supportTerminateDebuggee,omitempty"`
	SupportsDelayedStackTraceLoading      bool `json:"supportsDelayedStackTraceLoading,omitempty"`
	SupportsLoadedSourcesRequest          bool `json:"supportsLoadedSourcesRequest,omitempty"`
	SupportsLogPoints                     bool `json:"supportsLogPoints,omitempty"`
	SupportsTerminateThreadsRequest       bool `json:"supportsTerminateThreadsRequest,omitempty"`
	SupportsSetExpression                 bool `json:"supportsSetExpression,omitempty"`
	SupportsTerminateRequest              bool `json:"supportsTerminateRequest,omitempty"`
	SupportsDataBreakpoints               bool `json:"supportsDataBreakpoints,omitempty"`
	SupportsReadMemoryRequest             bool `json:"supportsReadMemoryRequest,omitempty"`
	SupportsDisassembleRequest            bool `json:"supportsDisassembleRequest,omitempty"`
	SupportsCancelRequest                 bool `json:"supportsCancelRequest,omitempty"`
	SupportsBreakpointLocationsRequest    bool `json:"supportsBreakpointLocationsRequest,omitempty"`
	SupportsClipboardContext              bool `json:"supportsClipboardContext,omitempty"`
	SupportsSteppingGranularity           bool `json:"supportsSteppingGranularity,omitempty"`
	SupportsInstructionBreakpoints        bool `json:"supportsInstructionBreakpoints,omitempty"`
	SupportsExceptionFilterOptions        bool `json:"supportsExceptionFilterOptions,omitempty"`
	SupportsSingleThreadExecutionRequests bool `json:"supportsSingleThreadExecutionRequests,omitempty"`
}

// --- initialize / launch / attach -----------------------------------------

type InitializeRequestArguments struct {
	ClientID                     string `json:"clientID,omitempty"`
	ClientName                   string `json:"clientName,omitempty"`
	AdapterID                    string `json:"adapterID"`
	Locale                       string `json:"locale,omitempty"`
	LinesStartAt1                bool   `json:"linesStartAt1,omitempty"`
	ColumnsStartAt1              bool   `json:"columnsStartAt1,omitempty"`
	PathFormat                   string `json:"pathFormat,omitempty"`
	SupportsVariableType         bool   `json:"supportsVariableType,omitempty"`
	SupportsVariablePaging       bool   `json:"supportsVariablePaging,omitempty"`
	SupportsRunInTerminalRequest bool   `json:"supportsRunInTerminalRequest,omitempty"`
	SupportsMemoryReferences     bool   `json:"supportsMemoryReferences,omitempty"`
	SupportsProgressReporting    bool   `json:"supportsProgressReporting,omitempty"`
	SupportsInvalidatedEvent     bool   `json:"supportsInvalidatedEvent,omitempty"`
	SupportsMemoryEvent          bool   `json:"supportsMemoryEvent,omitempty"`
}

// LaunchRequestArguments carries the fields every adapter agrees on;
// adapter-specific fields (program, args, env, ...) are marshaled
// separately by each adapters.Adapter implementation and sent as-is.
type LaunchRequestArguments struct {
	NoDebug bool `json:"noDebug,omitempty"`
}

// AttachRequestArguments is intentionally empty at this layer for the same
// reason as LaunchRequestArguments: attach fields are adapter-specific.
type AttachRequestArguments struct{}

type DisconnectArguments struct {
	Restart           bool `json:"restart,omitempty"`
	TerminateDebuggee bool `json:"terminateDebuggee,omitempty"`
	SuspendDebuggee   bool `json:"suspendDebuggee,omitempty"`
}

type TerminateArguments struct {
	Restart bool `json:"restart,omitempty"`
}

// --- breakpoints ------------------------------------------------------------

type SetBreakpointsArguments struct {
	Source         Source             `json:"source"`
	Breakpoints    []SourceBreakpoint `json:"breakpoints,omitempty"`
	Lines          []int              `json:"lines,omitempty"`
	SourceModified bool               `json:"sourceModified,omitempty"`
}

type SetBreakpointsResponseBody struct {
	Breakpoints []Breakpoint `json:"breakpoints"`
}

type SetFunctionBreakpointsArguments struct {
	Breakpoints []FunctionBreakpoint `json:"breakpoints"`
}

type SetExceptionBreakpointsArguments struct {
	Filters          []string                 `json:"filters"`
	FilterOptions    []ExceptionFilterOptions `json:"filterOptions,omitempty"`
	ExceptionOptions []ExceptionOptions       `json:"exceptionOptions,omitempty"`
}

type SourceBreakpoint struct {
	Line         int    `json:"line"`
	Column       int    `json:"column,omitempty"`
	Condition    string `json:"condition,omitempty"`
	HitCondition string `json:"hitCondition,omitempty"`
	LogMessage   string `json:"logMessage,omitempty"`
}

type FunctionBreakpoint struct {
	Name         string `json:"name"`
	Condition    string `json:"condition,omitempty"`
	HitCondition string `json:"hitCondition,omitempty"`
}

// Breakpoint is the adapter's verdict on one requested breakpoint: whether
// it actually bound to a location (Verified) and, if not, why (Message).
type Breakpoint struct {
	ID        int     `json:"id,omitempty"`
	Verified  bool    `json:"verified"`
	Message   string  `json:"message,omitempty"`
	Source    *Source `json:"source,omitempty"`
	Line      int     `json:"line,omitempty"`
	Column    int     `json:"column,omitempty"`
	EndLine   int     `json:"endLine,omitempty"`
	EndColumn int     `json:"endColumn,omitempty"`
	Offset    int     `json:"offset,omitempty"`
}

type ExceptionFilterOptions struct {
	FilterID  string `json:"filterId"`
	Condition string `json:"condition,omitempty"`
}

type ExceptionOptions struct {
	Path      []ExceptionPathSegment `json:"path,omitempty"`
	BreakMode string                 `json:"breakMode"` // "never", "always", "unhandled", "userUnhandled"
}

type ExceptionPathSegment struct {
	Negate bool     `json:"negate,omitempty"`
	Names  []string `json:"names"`
}

// --- execution control --------------------------------------------------

type ContinueArguments struct {
	ThreadID     int  `json:"threadId"`
	SingleThread bool `json:"singleThread,omitempty"`
}

type ContinueResponseBody struct {
	AllThreadsContinued bool `json:"allThreadsContinued,omitempty"`
}

type NextArguments struct {
	ThreadID     int    `json:"threadId"`
	SingleThread bool   `json:"singleThread,omitempty"`
	Granularity  string `json:"granularity,omitempty"` // "statement", "line", "instruction"
}

type StepInArguments struct {
	ThreadID     int    `json:"threadId"`
	SingleThread bool   `json:"singleThread,omitempty"`
	TargetID     int    `json:"targetId,omitempty"`
	Granularity  string `json:"granularity,omitempty"`
}

type StepOutArguments struct {
	ThreadID     int    `json:"threadId"`
	SingleThread bool   `json:"singleThread,omitempty"`
	Granularity  string `json:"granularity,omitempty"`
}

type PauseArguments struct {
	ThreadID int `json:"threadId"`
}

// --- stack, scopes, variables --------------------------------------------

type StackTraceArguments struct {
	ThreadID   int `json:"threadId"`
	StartFrame int `json:"startFrame,omitempty"`
	Levels     int `json:"levels,omitempty"`
}

type StackTraceResponseBody struct {
	StackFrames []StackFrame `json:"stackFrames"`
	TotalFrames int          `json:"totalFrames,omitempty"`
}

type StackFrame struct {
	ID                          int         `json:"id"`
	Name                        string      `json:"name"`
	Source                      *Source     `json:"source,omitempty"`
	Line                        int         `json:"line"`
	Column                      int         `json:"column"`
	EndLine                     int         `json:"endLine,omitempty"`
	EndColumn                   int         `json:"endColumn,omitempty"`
	CanRestart                  bool        `json:"canRestart,omitempty"`
	InstructionPointerReference string      `json:"instructionPointerReference,omitempty"`
	ModuleID                    interface{} `json:"moduleId,omitempty"`
	PresentationHint            string      `json:"presentationHint,omitempty"`
}

type ScopesArguments struct {
	FrameID int `json:"frameId"`
}

type ScopesResponseBody struct {
	Scopes []Scope `json:"scopes"`
}

type Scope struct {
	Name               string  `json:"name"`
	PresentationHint   string  `json:"presentationHint,omitempty"`
	VariablesReference int     `json:"variablesReference"`
	NamedVariables     int     `json:"namedVariables,omitempty"`
	IndexedVariables   int     `json:"indexedVariables,omitempty"`
	Expensive          bool    `json:"expensive"`
	Source             *Source `json:"source,omitempty"`
	Line               int     `json:"line,omitempty"`
	Column             int     `json:"column,omitempty"`
	EndLine            int     `json:"endLine,omitempty"`
	EndColumn          int     `json:"endColumn,omitempty"`
}

type VariablesArguments struct {
	VariablesReference int    `json:"variablesReference"`
	Filter             string `json:"filter,omitempty"` // "indexed", "named"
	Start              int    `json:"start,omitempty"`
	Count              int    `json:"count,omitempty"`
}

type VariablesResponseBody struct {
	Variables []Variable `json:"variables"`
}

type Variable struct {
	Name               string                    `json:"name"`
	Value              string                    `json:"value"`
	Type               string                    `json:"type,omitempty"`
	PresentationHint   *VariablePresentationHint `json:"presentationHint,omitempty"`
	EvaluateName       string                    `json:"evaluateName,omitempty"`
	VariablesReference int                       `json:"variablesReference"`
	NamedVariables     int                       `json:"namedVariables,omitempty"`
	IndexedVariables   int                       `json:"indexedVariables,omitempty"`
	MemoryReference    string                    `json:"memoryReference,omitempty"`
}

type VariablePresentationHint struct {
	Kind       string   `json:"kind,omitempty"`
	Attributes []string `json:"attributes,omitempty"`
	Visibility string   `json:"visibility,omitempty"`
	Lazy       bool     `json:"lazy,omitempty"`
}

type SetVariableArguments struct {
	VariablesReference int    `json:"variablesReference"`
	Name               string `json:"name"`
	Value              string `json:"value"`
}

type SetVariableResponseBody struct {
	Value              string `json:"value"`
	Type               string `json:"type,omitempty"`
	VariablesReference int    `json:"variablesReference,omitempty"`
	NamedVariables     int    `json:"namedVariables,omitempty"`
	IndexedVariables   int    `json:"indexedVariables,omitempty"`
}

// --- evaluate / threads / source -----------------------------------------

type EvaluateArguments struct {
	Expression string `json:"expression"`
	FrameID    int    `json:"frameId,omitempty"`
	Context    string `json:"context,omitempty"` // "watch", "repl", "hover", "clipboard"
}

type EvaluateResponseBody struct {
	Result             string `json:"result"`
	Type               string `json:"type,omitempty"`
	VariablesReference int    `json:"variablesReference"`
	NamedVariables     int    `json:"namedVariables,omitempty"`
	IndexedVariables   int    `json:"indexedVariables,omitempty"`
	MemoryReference    string `json:"memoryReference,omitempty"`
}

type ThreadsResponseBody struct {
	Threads []Thread `json:"threads"`
}

type Thread struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type SourceArguments struct {
	Source          *Source `json:"source,omitempty"`
	SourceReference int     `json:"sourceReference"`
}

type SourceResponseBody struct {
	Content  string `json:"content"`
	MimeType string `json:"mimeType,omitempty"`
}

// Source identifies a source file, either by path or, for adapter-synthesized
// content (disassembly, decompiled frames), by SourceReference.
type Source struct {
	Name             string      `json:"name,omitempty"`
	Path             string      `json:"path,omitempty"`
	SourceReference  int         `json:"sourceReference,omitempty"`
	PresentationHint string      `json:"presentationHint,omitempty"`
	Origin           string      `json:"origin,omitempty"`
	Sources          []Source    `json:"sources,omitempty"`
	AdapterData      interface{} `json:"adapterData,omitempty"`
	Checksums        []Checksum  `json:"checksums,omitempty"`
}

type Checksum struct {
	Algorithm string `json:"algorithm"` // "MD5", "SHA1", "SHA256", "timestamp"
	Checksum  string `json:"checksum"`
}

// --- events ---------------------------------------------------------------

type StoppedEventBody struct {
	Reason            string `json:"reason"` // "step", "breakpoint", "exception", "pause", "entry", "goto", ...
	Description       string `json:"description,omitempty"`
	ThreadID          int    `json:"threadId,omitempty"`
	PreserveFocusHint bool   `json:"preserveFocusHint,omitempty"`
	Text              string `json:"text,omitempty"`
	AllThreadsStopped bool   `json:"allThreadsStopped,omitempty"`
	HitBreakpointIds  []int  `json:"hitBreakpointIds,omitempty"`
}

type ContinuedEventBody struct {
	ThreadID            int  `json:"threadId"`
	AllThreadsContinued bool `json:"allThreadsContinued,omitempty"`
}

type ExitedEventBody struct {
	ExitCode int `json:"exitCode"`
}

type TerminatedEventBody struct {
	Restart interface{} `json:"restart,omitempty"`
}

type ThreadEventBody struct {
	Reason   string `json:"reason"` // "started", "exited"
	ThreadID int    `json:"threadId"`
}

type OutputEventBody struct {
	Category string      `json:"category,omitempty"` // "console", "important", "stdout", "stderr", "telemetry"
	Output   string      `json:"output"`
	Group    string      `json:"group,omitempty"` // "start", "startCollapsed", "end"
	Source   *Source     `json:"source,omitempty"`
	Line     int         `json:"line,omitempty"`
	Column   int         `json:"column,omitempty"`
	Data     interface{} `json:"data,omitempty"`
}

type BreakpointEventBody struct {
	Reason     string     `json:"reason"` // "changed", "new", "removed"
	Breakpoint Breakpoint `json:"breakpoint"`
}

type ModuleEventBody struct {
	Reason string `json:"reason"` // "new", "changed", "removed"
	Module Module `json:"module"`
}

type Module struct {
	ID             interface{} `json:"id"` // int or string
	Name           string      `json:"name"`
	Path           string      `json:"path,omitempty"`
	IsOptimized    bool        `json:"isOptimized,omitempty"`
	IsUserCode     bool        `json:"isUserCode,omitempty"`
	Version        string      `json:"version,omitempty"`
	SymbolStatus   string      `json:"symbolStatus,omitempty"`
	SymbolFilePath string      `json:"symbolFilePath,omitempty"`
	DateTimeStamp  string      `json:"dateTimeStamp,omitempty"`
	AddressRange   string      `json:"addressRange,omitempty"`
}

type LoadedSourceEventBody struct {
	Reason string `json:"reason"` // "new", "changed", "removed"
	Source Source `json:"source"`
}

type ProcessEventBody struct {
	Name            string `json:"name"`
	SystemProcessID int    `json:"systemProcessId,omitempty"`
	IsLocalProcess  bool   `json:"isLocalProcess,omitempty"`
	StartMethod     string `json:"startMethod,omitempty"` // "launch", "attach", "attachForSuspendedLaunch"
	PointerSize     int    `json:"pointerSize,omitempty"`
}

type CapabilitiesEventBody struct {
	Capabilities Capabilities `json:"capabilities"`
}

type ProgressStartEventBody struct {
	ProgressID  string `json:"progressId"`
	Title       string `json:"title"`
	RequestID   int    `json:"requestId,omitempty"`
	Cancellable bool   `json:"cancellable,omitempty"`
	Message     string `json:"message,omitempty"`
	Percentage  int    `json:"percentage,omitempty"`
}

type ProgressUpdateEventBody struct {
	ProgressID string `json:"progressId"`
	Message    string `json:"message,omitempty"`
	Percentage int    `json:"percentage,omitempty"`
}

type ProgressEndEventBody struct {
	ProgressID string `json:"progressId"`
	Message    string `json:"message,omitempty"`
}
