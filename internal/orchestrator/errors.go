package orchestrator

import "github.com/victoralfred/funnelengine/internal/apperr"

// StatusHint maps an apperr.Code to the HTTP status family a transport
// layer should use, without the orchestrator importing any transport
// package itself.
func StatusHint(err error) int {
	switch apperr.CodeOf(err) {
	case apperr.CodeInvalidSchema:
		return 400
	case apperr.CodeInsufficientPermission:
		return 403
	case apperr.CodeNotFound:
		return 404
	case apperr.CodeConflict:
		return 409
	case apperr.CodePayloadTooLarge:
		return 413
	case apperr.CodeRateLimited:
		return 429
	case apperr.CodeTimeout:
		return 504
	default:
		return 500
	}
}
