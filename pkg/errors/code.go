package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Contest & Problem errors
// 12000-12999: Submission intake errors
// 13000-13999: Judge & Sandbox errors
// 14000-14999: Leaderboard errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	LockFailed ErrorCode = 10203

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303
	ValueTooLong       ErrorCode = 10304

	// Queue errors (10400-10499)
	QueueError       ErrorCode = 10400
	QueuePublishFail ErrorCode = 10401
	QueueClosed      ErrorCode = 10402

	// Storage errors (10500-10599)
	StorageError ErrorCode = 10500

	// ========== Contest & Problem Errors (11000-11999) ==========

	ContestNotFound     ErrorCode = 11000
	ContestNotStarted   ErrorCode = 11001
	ContestEnded        ErrorCode = 11002
	ProblemNotFound     ErrorCode = 11100
	ProblemNotInContest ErrorCode = 11101
	TestCaseNotFound    ErrorCode = 11200

	// ========== Submission Errors (12000-12999) ==========

	SubmissionNotFound      ErrorCode = 12000
	SubmissionCreateFailed  ErrorCode = 12001
	CodeTooLarge            ErrorCode = 12002
	LanguageNotSupported    ErrorCode = 12003
	SubmitTooFrequently     ErrorCode = 12004
	SubmissionStateConflict ErrorCode = 12005

	// ========== Judge Errors (13000-13999) ==========

	JudgeQueueFull   ErrorCode = 13000
	JudgeSystemError ErrorCode = 13001
	SandboxFault     ErrorCode = 13002
	JudgeLockHeld    ErrorCode = 13003

	// ========== Leaderboard Errors (14000-14999) ==========

	LeaderboardUnavailable ErrorCode = 14000
)

// errorMessages maps error codes to default messages
var errorMessages = map[ErrorCode]string{
	Success: "Success",

	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	TooManyRequests:     "Too many requests",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	DatabaseError:       "Database error",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Transaction failed",

	CacheError: "Cache error",
	LockFailed: "Failed to acquire lock",

	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",
	ValueTooLong:       "Value is too long",

	QueueError:       "Message queue error",
	QueuePublishFail: "Failed to publish message",
	QueueClosed:      "Message queue is closed",

	StorageError: "Object storage error",

	ContestNotFound:     "Contest not found",
	ContestNotStarted:   "Contest has not started yet",
	ContestEnded:        "Contest has ended",
	ProblemNotFound:     "Problem not found",
	ProblemNotInContest: "Problem does not belong to this contest",
	TestCaseNotFound:    "Test case not found",

	SubmissionNotFound:      "Submission not found",
	SubmissionCreateFailed:  "Failed to create submission",
	CodeTooLarge:            "Code size exceeds limit",
	LanguageNotSupported:    "Programming language not supported",
	SubmitTooFrequently:     "Submitting too frequently, please try again later",
	SubmissionStateConflict: "Submission state transition rejected",

	JudgeQueueFull:   "Judge queue is full",
	JudgeSystemError: "Judge system error",
	SandboxFault:     "Sandbox failed to execute the submission",
	JudgeLockHeld:    "Submission is being judged by another worker",

	LeaderboardUnavailable: "Leaderboard is temporarily unavailable",
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
	case c == NotFound, c == ContestNotFound, c == ProblemNotFound, c == SubmissionNotFound, c == TestCaseNotFound:
		return 404
	case c == TooManyRequests, c == SubmitTooFrequently:
		return 429
	case c == ServiceUnavailable, c == JudgeQueueFull, c == LeaderboardUnavailable:
		return 503
	case c == Timeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == CodeTooLarge, c == LanguageNotSupported:
		return 400
	case c == ContestNotStarted, c == ContestEnded, c == ProblemNotInContest:
		return 400
	case c == SubmissionStateConflict, c == RecordAlreadyExists:
		return 409
	default:
		return 500
	}
}
