package observability

// Semantic conventions shared by every component. Keep keys lower-case and
// dot-separated so they read the same in compact, pretty and JSON log output.

// --- Model gateway ---

const (
	// AttrLLMProvider is the provider name ("openai", "anthropic").
	AttrLLMProvider = "llm.provider"

	// AttrLLMModel is the model identifier sent with the request.
	AttrLLMModel = "llm.model"

	// AttrLLMEndpoint is the API base URL.
	AttrLLMEndpoint = "llm.endpoint"

	// AttrLLMStreaming reports whether the provider streamed natively.
	AttrLLMStreaming = "llm.streaming"

	// AttrLLMFinishReason is the reason the generation finished.
	AttrLLMFinishReason = "llm.finish_reason"

	AttrLLMTokensPrompt     = "llm.tokens.prompt"     // #nosec G101 -- LLM tokens, not credentials
	AttrLLMTokensCompletion = "llm.tokens.completion" // #nosec G101 -- LLM tokens, not credentials
	AttrLLMTokensTotal      = "llm.tokens.total"      // #nosec G101 -- LLM tokens, not credentials
)

// --- Request shape ---

const (
	AttrRequestMessagesCount = "request.messages_count"
	AttrRequestToolsCount    = "request.tools_count"
)

// --- Tools ---

const (
	AttrToolName     = "tool.name"
	AttrToolCallID   = "tool.call_id"
	AttrToolInput    = "tool.input"
	AttrToolOutput   = "tool.output"
	AttrToolDuration = "tool.duration"
	AttrToolError    = "tool.error"
	AttrToolRound    = "tool.round"
)

// --- Memory gateway ---

const (
	AttrMemoryBackend    = "memory.backend"
	AttrMemoryQuery      = "memory.query"
	AttrMemorySpaceIDs   = "memory.space_ids"
	AttrMemoryLimit      = "memory.limit"
	AttrMemoryEpisodes   = "memory.episodes"
	AttrMemoryTextLength = "memory.text_length"
)

// --- Conversation engine ---

const (
	AttrConversationID     = "conversation.id"
	AttrConversationStatus = "conversation.status"
	AttrTurnHistorySize    = "conversation.turn.history_size"
	AttrTurnEvents         = "conversation.turn.events"
	AttrTurnOutcome        = "conversation.turn.outcome"
	AttrErrorKind          = "error.kind"
)

// --- HTTP ---

const (
	AttrHTTPMethod           = "http.method"
	AttrHTTPStatusCode       = "http.status_code"
	AttrHTTPURL              = "http.url"
	AttrHTTPRequestBodySize  = "http.request.body.size"
	AttrHTTPResponseBodySize = "http.response.body.size"
	AttrHTTPDuration         = "http.request.duration"
)

// --- General ---

const (
	AttrError             = "error"
	AttrDuration          = "duration"
	AttrStatus            = "status"
	AttrStatusDescription = "status_description"
)

// --- Span names ---

const (
	SpanLLMRequest       = "llm.request"
	SpanToolExecution    = "tool.execution"
	SpanMemoryOperation  = "memory.operation"
	SpanConversationTurn = "conversation.turn"
)

// --- Event names ---

const (
	EventLLMRequestStart     = "llm.request.start"
	EventLLMRequestEnd       = "llm.request.end"
	EventToolExecutionStart  = "tool.execution.start"
	EventToolExecutionEnd    = "tool.execution.end"
	EventMemorySearch        = "memory.search"
	EventMemoryIngest        = "memory.ingest"
	EventMemoryListSpaces    = "memory.list_spaces"
	EventMemoryPrefetchStart = "memory.prefetch.start"
	EventMemoryPrefetchEnd   = "memory.prefetch.end"
	EventModelRoundStart     = "agent.round.start"
	EventHTTPRequestPrepared = "http.request.prepared"
	EventHTTPRequestError    = "http.request.error"
	EventHTTPResponse        = "http.response.received"
	EventHTTPStreamStarted   = "http.stream_response.started"
)

// --- Metric names ---

const (
	MetricLLMRequestCount     = "mammochat.llm.request.count"
	MetricLLMRequestDuration  = "mammochat.llm.request.duration"
	MetricLLMTokensTotal      = "mammochat.llm.tokens.total" // #nosec G101 -- LLM tokens, not credentials
	MetricTurnCount           = "mammochat.turn.count"
	MetricTurnDuration        = "mammochat.turn.duration"
	MetricToolCallCount       = "mammochat.tool.call.count"
	MetricMemoryDegradedCount = "mammochat.memory.degraded.count"
)
