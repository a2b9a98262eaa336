package controller

import (
	"errors"
	"net"
	"net/http"
	"net/netip"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sharetube/zone/internal/media"
	"github.com/sharetube/zone/internal/service"
	"github.com/sharetube/zone/pkg/rest"
	"github.com/sharetube/zone/pkg/validator"
	"github.com/sharetube/zone/pkg/wsrouter"
)

// clientIp is the address used for bans and queue limits. Forwarding headers are only
// honoured when the peer is a trusted proxy.
func (c controller) clientIp(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	if !c.isTrustedProxy(host) {
		return host
	}

	// the rightmost untrusted hop is the first one a trusted proxy saw
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if _, err := netip.ParseAddr(hop); err != nil {
				break
			}
			if !c.isTrustedProxy(hop) {
				return hop
			}
		}
	}

	if realIp := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIp != "" {
		if _, err := netip.ParseAddr(realIp); err == nil {
			return realIp
		}
	}

	return host
}

func (c controller) isTrustedProxy(host string) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, prefix := range c.trustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}

	return false
}

func isValidationError(err error) bool {
	var fieldErrs validation.Errors
	var ruleErr validation.Error
	var tagErrs validator.ValidationErrors

	return errors.As(err, &fieldErrs) ||
		errors.As(err, &ruleErr) ||
		errors.As(err, &tagErrs) ||
		errors.Is(err, wsrouter.ErrInvalidFormat) ||
		errors.Is(err, wsrouter.ErrUnknownType)
}

func errorStatus(err error) int {
	switch {
	case isValidationError(err),
		errors.Is(err, service.ErrUnknownCommand),
		errors.Is(err, media.ErrUnsupportedPath):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrPermissionDenied),
		errors.Is(err, service.ErrWrongPassword),
		errors.Is(err, service.ErrBanned):
		return http.StatusForbidden
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrItemNotFound),
		errors.Is(err, service.ErrNothingPlaying),
		errors.Is(err, media.ErrNotFound),
		errors.Is(err, media.ErrNoBangers):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyQueued),
		errors.Is(err, service.ErrQueueLimitReached):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (c controller) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		c.logger.ErrorContext(r.Context(), "request failed", "error", err)
		rest.WriteJSON(w, status, rest.Envelope{"error": "internal error"})
		return
	}

	c.logger.DebugContext(r.Context(), "request refused", "error", err, "status", status)

	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		rest.WriteJSON(w, status, rest.Envelope{"errors": fieldErrs})
		return
	}

	rest.WriteJSON(w, status, rest.Envelope{"error": err.Error()})
}
