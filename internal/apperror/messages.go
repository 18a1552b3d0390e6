package apperror

import "net/http"

var messages = map[Code]string{
	CodeInvalidInput:       "Invalid input provided",
	CodeInvalidState:       "Invalid state for this operation",
	CodeNotFound:           "Resource not found",
	CodeConfigurationError: "Configuration error",
	CodeServiceTimeout:     "Service request timeout",
	CodeServiceUnavailable: "Service temporarily unavailable",
	CodeRateLimitExceeded:  "Rate limit exceeded",
	CodeInternalError:      "Internal error",
	CodeUnknownError:       "An unknown error occurred",

	CodeInvalidTicker:            "Ticker failed validation",
	CodeMarketDataUnavailable:    "Market data unavailable",
	CodeVenueAPIError:            "Venue API error",
	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",
	CodeNetworkCostUnavailable:   "Network cost estimate unavailable",

	CodeInvalidCandidate:        "Candidate failed validation",
	CodeInvalidRiskConfig:       "Risk configuration is invalid",
	CodeCandidateNotAdmitted:    "Candidate was not admitted",
	CodeCandidateAlreadyClaimed: "Candidate already claimed",
	CodeInvalidStatusTransition: "Invalid candidate status transition",
	CodeExecutionFailed:         "Execution failed",
	CodeExecutionTimeout:        "Execution timed out",
	CodePersistenceUnavailable:  "Persistence unavailable",
	CodeLockHeld:                "Lock held by another owner",

	CodeSchedulerNotRunning: "Scheduler is not running",
	CodeCircuitOpen:         "Circuit breaker is open",
	CodePublishFailed:       "Failed to publish event",
	CodeNotifyFailed:        "Failed to send notification",
}

var statusCodes = map[Code]int{
	CodeInvalidInput:             http.StatusBadRequest,
	CodeInvalidTicker:            http.StatusBadRequest,
	CodeInvalidCandidate:         http.StatusBadRequest,
	CodeInvalidRiskConfig:        http.StatusBadRequest,
	CodeConfigurationError:       http.StatusBadRequest,
	CodeNotFound:                 http.StatusNotFound,
	CodeInvalidState:             http.StatusConflict,
	CodeCandidateNotAdmitted:     http.StatusConflict,
	CodeCandidateAlreadyClaimed:  http.StatusConflict,
	CodeInvalidStatusTransition:  http.StatusConflict,
	CodeLockHeld:                 http.StatusConflict,
	CodeSchedulerNotRunning:      http.StatusConflict,
	CodeRateLimitExceeded:        http.StatusTooManyRequests,
	CodeServiceTimeout:           http.StatusGatewayTimeout,
	CodeExecutionTimeout:         http.StatusGatewayTimeout,
	CodeServiceUnavailable:       http.StatusServiceUnavailable,
	CodeMarketDataUnavailable:    http.StatusServiceUnavailable,
	CodePersistenceUnavailable:   http.StatusServiceUnavailable,
	CodeCircuitOpen:              http.StatusServiceUnavailable,
	CodeNetworkCostUnavailable:   http.StatusServiceUnavailable,
	CodeWebSocketConnectionError: http.StatusServiceUnavailable,
	CodeVenueAPIError:            http.StatusBadGateway,
}

func getDefaultStatusCode(code Code) int {
	if status, ok := statusCodes[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
