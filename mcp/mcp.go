// Package mcp defines the wire-level types and method names of the Model
// Context Protocol surface spoken by this module: the initialize handshake,
// tool/resource/prompt listings, tool invocation and the notification
// channel used for diagnostics. Types mirror the protocol JSON shapes and
// carry no behavior beyond small convenience constructors.
package mcp

// ProtocolVersion is the protocol revision this implementation speaks.
const ProtocolVersion = "2024-11-05"

// Method names of the request/response surface.
const (
	MethodInitialize            = "initialize"
	MethodPing                  = "ping"
	MethodListTools             = "tools/list"
	MethodCallTool              = "tools/call"
	MethodListResources         = "resources/list"
	MethodListResourceTemplates = "resources/templates/list"
	MethodListPrompts           = "prompts/list"
	MethodSetLevel              = "logging/setLevel"
)

// Notification method names (no response expected).
const (
	NotificationInitialized     = "notifications/initialized"
	NotificationToolListChanged = "notifications/tools/list_changed"
	NotificationLoggingMessage  = "notifications/message"
)

// Implementation identifies one side of a session by name and version.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientCapabilities advertises optional client features during initialize.
type ClientCapabilities struct {
	Experimental map[string]any   `json:"experimental,omitempty"`
	Roots        *RootsCapability `json:"roots,omitempty"`
	Sampling     map[string]any   `json:"sampling,omitempty"`
}

// RootsCapability signals filesystem root support.
type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ServerCapabilities advertises the feature set offered by a server.
type ServerCapabilities struct {
	Logging   map[string]any       `json:"logging,omitempty"`
	Prompts   *PromptsCapability   `json:"prompts,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
	Tools     *ToolsCapability     `json:"tools,omitempty"`
}

// PromptsCapability is present when the server offers prompt templates.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability is present when the server offers readable resources.
type ResourcesCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
	Subscribe   bool `json:"subscribe,omitempty"`
}

// ToolsCapability is present when the server offers callable tools.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// InitializeParams is the client's opening handshake request.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult is the server's handshake reply.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
}

// ParameterSchema describes a single tool parameter. Object-kind parameters
// may carry a nested property map.
type ParameterSchema struct {
	Type        string                      `json:"type"`
	Description string                      `json:"description,omitempty"`
	Required    bool                        `json:"required,omitempty"`
	Items       *ParameterSchema            `json:"items,omitempty"`
	Properties  map[string]*ParameterSchema `json:"properties,omitempty"`
}

// ToolInputSchema is the JSON-Schema-shaped argument description of a tool.
type ToolInputSchema struct {
	Type       string                      `json:"type"`
	Properties map[string]*ParameterSchema `json:"properties,omitempty"`
	Required   []string                    `json:"required,omitempty"`
}

// Tool describes one callable operation exposed by a server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema ToolInputSchema `json:"inputSchema"`
}

// ListToolsResult is the server's response to tools/list.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams names a tool and carries its raw, untyped arguments.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Content is one item of a tool result: either text or an inlined blob.
// Type is "text" or "blob"; exactly the fields of that variant are set.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"` // base64 payload for blob items
	MimeType string `json:"mimeType,omitempty"`
}

// TextContent builds a text content item.
func TextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// BlobContent builds a blob content item from base64 data and a MIME type.
func BlobContent(data, mimeType string) Content {
	return Content{Type: "blob", Data: data, MimeType: mimeType}
}

// CallToolResult is the outcome of a tool invocation. Tool-level failures
// are reported inline via IsError so the caller (typically a model) can see
// and react to them; they are never protocol errors.
type CallToolResult struct {
	IsError bool      `json:"isError"`
	Content []Content `json:"content"`
}

// ErrorResult builds an isError result from ordered text items.
func ErrorResult(texts ...string) *CallToolResult {
	content := make([]Content, len(texts))
	for i, t := range texts {
		content[i] = TextContent(t)
	}
	return &CallToolResult{IsError: true, Content: content}
}

// TextResult builds a successful single-text result.
func TextResult(text string) *CallToolResult {
	return &CallToolResult{Content: []Content{TextContent(text)}}
}

// Resource describes a listable, URI-addressed item. Resources are listed
// only; they are not invocable through tools/call.
type Resource struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URI         string `json:"uri"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourcesResult is the server's response to resources/list.
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
}

// ResourceTemplate describes a parameterized resource URI.
type ResourceTemplate struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URITemplate string `json:"uriTemplate"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourceTemplatesResult is the server's response to
// resources/templates/list.
type ListResourceTemplatesResult struct {
	Templates []ResourceTemplate `json:"templates"`
}

// Prompt describes a named prompt template offered by the server.
type Prompt struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ListPromptsResult is the server's response to prompts/list.
type ListPromptsResult struct {
	Prompts []Prompt `json:"prompts"`
}

// LoggingLevel is a syslog-style message severity.
type LoggingLevel string

// Logging levels ordered from least to most severe.
const (
	LevelDebug     LoggingLevel = "debug"
	LevelInfo      LoggingLevel = "info"
	LevelNotice    LoggingLevel = "notice"
	LevelWarning   LoggingLevel = "warning"
	LevelError     LoggingLevel = "error"
	LevelCritical  LoggingLevel = "critical"
	LevelAlert     LoggingLevel = "alert"
	LevelEmergency LoggingLevel = "emergency"
)

var levelSeverity = map[LoggingLevel]int{
	LevelDebug:     0,
	LevelInfo:      1,
	LevelNotice:    2,
	LevelWarning:   3,
	LevelError:     4,
	LevelCritical:  5,
	LevelAlert:     6,
	LevelEmergency: 7,
}

// Severity returns the numeric rank of a level. Unknown levels rank as info.
func (l LoggingLevel) Severity() int {
	if s, ok := levelSeverity[l]; ok {
		return s
	}
	return levelSeverity[LevelInfo]
}

// SetLevelParams configures the minimum severity forwarded to the client.
type SetLevelParams struct {
	Level LoggingLevel `json:"level"`
}

// LoggingMessageParams is the payload of a notifications/message entry.
type LoggingMessageParams struct {
	Level  LoggingLevel `json:"level"`
	Logger string       `json:"logger,omitempty"`
	Data   any          `json:"data"`
}
