package types

import "sync"

// OutputFormat selects how command results are rendered
type OutputFormat string

const (
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// GlobalFlags holds flags shared by every command
type GlobalFlags struct {
	Profile      string
	OutputFormat OutputFormat
	Quiet        bool
	Verbose      bool
	Debug        bool
	Config       string
	LogFile      string
	DryRun       bool
	JSON         bool
}

// RequestType categorizes remote calls for logging and shaping
type RequestType string

const (
	RequestTypeStat     RequestType = "stat"
	RequestTypeList     RequestType = "list"
	RequestTypeDownload RequestType = "download"
	RequestTypeUpload   RequestType = "upload"
	RequestTypeMkdir    RequestType = "mkdir"
	RequestTypeImport   RequestType = "import"
	RequestTypeToken    RequestType = "token"
)

// RequestContext carries per-request metadata through the API layer.
// One context is shared by every worker in a run, so the path record is
// mutex-guarded.
type RequestContext struct {
	Profile     string
	System      string
	RequestType RequestType
	TraceID     string

	mu            sync.Mutex
	involvedPaths []string
}

// AddPath records a remote path touched by this request. Safe for
// concurrent use.
func (r *RequestContext) AddPath(remotePath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.involvedPaths = append(r.involvedPaths, remotePath)
}

// Paths returns a copy of the remote paths touched so far
func (r *RequestContext) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.involvedPaths...)
}

// CLIError is the structured error carried in command output
type CLIError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"httpStatus,omitempty"`
	APIReason  string                 `json:"apiReason,omitempty"`
	Retryable  bool                   `json:"retryable,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// CLIWarning is a non-fatal notice carried in command output
type CLIWarning struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// CLIOutput is the schema-versioned envelope for JSON output
type CLIOutput struct {
	SchemaVersion string       `json:"schemaVersion"`
	TraceID       string       `json:"traceId"`
	Command       string       `json:"command"`
	Data          interface{}  `json:"data"`
	Warnings      []CLIWarning `json:"warnings"`
	Errors        []CLIError   `json:"errors"`
}
