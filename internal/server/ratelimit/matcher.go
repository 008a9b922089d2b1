package ratelimit

// MatchEndpoint finds the configuration for a request path and method.
// Returns nil when no tier applies, which leaves the request on the
// default limit. Paths with identifiers, like run detail reads, are
// deliberately not tiered.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	// The health check is probed by orchestration and never metered
	if path == "/health" && method == "GET" {
		return &EndpointConfig{}
	}

	for i := range configs {
		if configs[i].Path == path && configs[i].Method == method {
			return &configs[i]
		}
	}
	return nil
}
