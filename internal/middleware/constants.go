package middleware

// HTTP header constants.
const (
	// HeaderXRequestID is the X-Request-ID header name.
	HeaderXRequestID = "X-Request-ID"

	// HeaderRetryAfter is the Retry-After header name.
	HeaderRetryAfter = "Retry-After"

	// HeaderRateLimitLimit is the X-RateLimit-Limit header name.
	HeaderRateLimitLimit = "X-RateLimit-Limit"

	// HeaderRateLimitRemaining is the X-RateLimit-Remaining header name.
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
)

// Gin context keys.
const (
	// RequestIDKey is the gin context key for the request ID.
	RequestIDKey = "requestID"

	// SpanKey is the gin context key for the request span.
	SpanKey = "otel-span"
)
