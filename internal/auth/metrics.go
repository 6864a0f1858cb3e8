package auth

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for auth_decisions_total.
const (
	OutcomePassthrough      = "passthrough"
	OutcomeBound            = "bound"
	OutcomeMissingToken     = "missing_token"
	OutcomeExpired          = "expired"
	OutcomeInvalid          = "invalid"
	OutcomeUnknownSubject   = "unknown_subject"
	OutcomeStoreUnavailable = "store_unavailable"
)

var authDecisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_decisions_total",
		Help: "Request authentication decisions by outcome",
	},
	[]string{"outcome"},
)

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return OutcomeBound
	case errors.Is(err, ErrMissingToken):
		return OutcomeMissingToken
	case errors.Is(err, ErrExpired):
		return OutcomeExpired
	case errors.Is(err, ErrUnknownSubject):
		return OutcomeUnknownSubject
	case errors.Is(err, ErrStoreUnavailable):
		return OutcomeStoreUnavailable
	default:
		return OutcomeInvalid
	}
}
