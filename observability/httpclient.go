package observability

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPClient returns an http.Client whose transport is instrumented
// with otelhttp, so every provider client's vendor calls are traced.
// provider names the vendor family (e.g. "openai", "anthropic", "google",
// "proxy") this client belongs to; spans are named "llm.<provider> <verb>"
// so traces distinguish which of the four provider clients made the call.
func NewHTTPClient(base *http.Client, provider string) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	base.Transport = otelhttp.NewTransport(rt,
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			if operation != "" {
				return "llm." + provider + " " + operation
			}
			return "llm." + provider + " " + r.Method
		}),
	)
	return base
}
