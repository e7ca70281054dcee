package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Authorization decision counters. Labels keep cardinality bounded: check is
// the check kind (role, permission, location, resource, session), outcome is
// allow/deny/error.
var (
	AuthDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sidesa_auth_decisions_total",
		Help: "Authorization decisions by check kind and outcome.",
	}, []string{"check", "outcome"})

	FallbackActivations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sidesa_auth_fallback_activations_total",
		Help: "Times the optimized lookup path failed and the fallback strategy ran.",
	}, []string{"path"})
)
