package apperror

// Code is a stable, machine-readable error identifier.
type Code string

// General codes
const (
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeInvalidState       Code = "INVALID_STATE"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConfigurationError Code = "CONFIGURATION_ERROR"
	CodeServiceTimeout     Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"
	CodeInternalError      Code = "INTERNAL_ERROR"
	CodeUnknownError       Code = "UNKNOWN_ERROR"
)

// Market data
const (
	CodeInvalidTicker            Code = "INVALID_TICKER"
	CodeMarketDataUnavailable    Code = "MARKET_DATA_UNAVAILABLE"
	CodeVenueAPIError            Code = "VENUE_API_ERROR"
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"
	CodeNetworkCostUnavailable   Code = "NETWORK_COST_UNAVAILABLE"
)

// Detection, risk and execution
const (
	CodeInvalidCandidate        Code = "INVALID_CANDIDATE"
	CodeInvalidRiskConfig       Code = "INVALID_RISK_CONFIG"
	CodeCandidateNotAdmitted    Code = "CANDIDATE_NOT_ADMITTED"
	CodeCandidateAlreadyClaimed Code = "CANDIDATE_ALREADY_CLAIMED"
	CodeInvalidStatusTransition Code = "INVALID_STATUS_TRANSITION"
	CodeExecutionFailed         Code = "EXECUTION_FAILED"
	CodeExecutionTimeout        Code = "EXECUTION_TIMEOUT"
	CodePersistenceUnavailable  Code = "PERSISTENCE_UNAVAILABLE"
	CodeLockHeld                Code = "LOCK_HELD"
)

// Scheduling and infrastructure
const (
	CodeSchedulerNotRunning Code = "SCHEDULER_NOT_RUNNING"
	CodeCircuitOpen         Code = "CIRCUIT_OPEN"
	CodePublishFailed       Code = "PUBLISH_FAILED"
	CodeNotifyFailed        Code = "NOTIFY_FAILED"
)
