/*
Package errs provides custom error types and application-level error code constants.

These codes identify specific business or system errors both internally and in
communication with clients, over REST responses and websocket error frames alike.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON is malformed.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates trailing content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Room and Message Errors
const (
	// ErrRoomNotFound indicates that the referenced room does not exist.
	ErrRoomNotFound = 2103

	// ErrInvalidMessage indicates a message rejected by relay validation before
	// any broadcast or persistence side effect.
	ErrInvalidMessage = 2201

	// ErrMessageContentTooLong indicates message content over the size limit.
	ErrMessageContentTooLong = 2202
)

// 3xxx: Identity and Session Errors
const (
	// ErrInvalidIdentity indicates an empty or malformed user identity supplied
	// at registration time.
	ErrInvalidIdentity = 3101

	// ErrUnauthorized indicates a missing or invalid identity token.
	ErrUnauthorized = 3401
)

// 5xxx: Internal and Downstream Errors
const (
	// ErrUnknown represents an unclassified internal error.
	ErrUnknown = 5000

	// ErrStoreUnavailable indicates a transient durable-store failure. The relay
	// logs it and proceeds without persistence.
	ErrStoreUnavailable = 5100

	// ErrUpstreamGeneration indicates a reply-generation collaborator failure,
	// degraded to fallback content rather than silence.
	ErrUpstreamGeneration = 5200
)
