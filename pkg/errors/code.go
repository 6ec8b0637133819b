package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 20000-20999: Matchmaking & Queue errors
// 21000-21999: Match lifecycle errors
// 22000-22999: Submission & Judge errors
// 23000-23999: Rating errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError     ErrorCode = 10200
	CacheSetFailed ErrorCode = 10201
	LockFailed     ErrorCode = 10202

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	RequiredFieldEmpty ErrorCode = 10302

	// Auth errors (10400-10499)
	TokenInvalid ErrorCode = 10400
	TokenExpired ErrorCode = 10401

	// ========== Matchmaking & Queue Errors (20000-20999) ==========

	UnknownGameMode  ErrorCode = 20000
	AlreadyInQueue   ErrorCode = 20001
	NotInQueue       ErrorCode = 20002
	QueueJoinFailed  ErrorCode = 20003
	PairingLockBusy  ErrorCode = 20004
	NotEnoughPlayers ErrorCode = 20005

	// ========== Match Lifecycle Errors (21000-21999) ==========

	MatchNotFound       ErrorCode = 21000
	MatchNotWaiting     ErrorCode = 21001
	MatchNotActive      ErrorCode = 21002
	MatchAlreadyEnded   ErrorCode = 21003
	PlayerNotInMatch    ErrorCode = 21004
	ProblemNotInMatch   ErrorCode = 21005
	ProblemLocked       ErrorCode = 21006
	MatchStateCorrupted ErrorCode = 21007
	FinalizeFailed      ErrorCode = 21008

	// ========== Submission & Judge Errors (22000-22999) ==========

	// Submission intake (22000-22099)
	SubmissionNotFound     ErrorCode = 22000
	SubmissionCreateFailed ErrorCode = 22001
	CodeTooLarge           ErrorCode = 22002
	LanguageNotSupported   ErrorCode = 22003
	SubmitTooFrequently    ErrorCode = 22004
	DuplicateSubmission    ErrorCode = 22005

	// Judge execution (22100-22199)
	JudgeQueueFull   ErrorCode = 22100
	JudgeSystemError ErrorCode = 22101
	SandboxFailed    ErrorCode = 22102

	// Problem catalog (22200-22299)
	ProblemNotFound     ErrorCode = 22200
	TestDataUnavailable ErrorCode = 22201
	TestBundleCorrupted ErrorCode = 22202

	// ========== Rating Errors (23000-23999) ==========

	RatingNotFound     ErrorCode = 23000
	RatingUpdateFailed ErrorCode = 23001
	UnknownDimension   ErrorCode = 23002
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",

	// Cache
	CacheError:     "Cache operation failed",
	CacheSetFailed: "Failed to set cache",
	LockFailed:     "Failed to acquire lock",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	RequiredFieldEmpty: "Required field is empty",

	// Auth
	TokenInvalid: "Invalid token",
	TokenExpired: "Token has expired",

	// Matchmaking & Queue
	UnknownGameMode:  "Unknown game mode",
	AlreadyInQueue:   "Already in queue for this mode",
	NotInQueue:       "Not in queue",
	QueueJoinFailed:  "Failed to join queue",
	PairingLockBusy:  "Pairing already in progress",
	NotEnoughPlayers: "Not enough players in queue",

	// Match lifecycle
	MatchNotFound:       "Match not found",
	MatchNotWaiting:     "Match is not waiting for players",
	MatchNotActive:      "Match is not active",
	MatchAlreadyEnded:   "Match has already ended",
	PlayerNotInMatch:    "Player is not part of this match",
	ProblemNotInMatch:   "Problem is not part of this match",
	ProblemLocked:       "Problem has already been solved",
	MatchStateCorrupted: "Match state is corrupted",
	FinalizeFailed:      "Match finalization failed",

	// Submission intake
	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",
	SubmitTooFrequently:    "Submitting too frequently, please wait",
	DuplicateSubmission:    "Duplicate submission",

	// Judge execution
	JudgeQueueFull:   "Judge queue is full, please try again later",
	JudgeSystemError: "Judge system error",
	SandboxFailed:    "Sandbox execution failed",

	// Problem catalog
	ProblemNotFound:     "Problem not found",
	TestDataUnavailable: "Test data unavailable",
	TestBundleCorrupted: "Test data bundle is corrupted",

	// Rating
	RatingNotFound:     "Rating not found",
	RatingUpdateFailed: "Failed to update rating",
	UnknownDimension:   "Unknown rating dimension",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized, c == TokenInvalid, c == TokenExpired:
		return 401
	case c == Forbidden:
		return 403
	case c == NotFound, c == MatchNotFound, c == ProblemNotFound, c == SubmissionNotFound, c == RatingNotFound:
		return 404
	case c == TooManyRequests, c == SubmitTooFrequently:
		return 429
	case c == ProblemLocked, c == AlreadyInQueue, c == DuplicateSubmission, c == RecordAlreadyExists:
		return 409
	case c == ServiceUnavailable, c == JudgeQueueFull:
		return 503
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == UnknownGameMode, c == LanguageNotSupported, c == CodeTooLarge:
		return 400
	default:
		return 500
	}
}

// IsRetryable reports whether the caller may retry the failed operation.
func (c ErrorCode) IsRetryable() bool {
	switch c {
	case TooManyRequests, SubmitTooFrequently, PairingLockBusy, JudgeQueueFull, LockFailed:
		return true
	}
	return false
}
