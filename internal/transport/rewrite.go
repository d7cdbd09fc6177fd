package transport

import "strings"

// RewriteDockerHost rewrites literal "localhost" and "127.0.0.1" host
// components in an upstream URL to "host.docker.internal", for deployments
// where the aggregator runs in a container but upstream servers run on
// the host. The pool applies it to every SSE and Streamable HTTP upstream
// URL; no flag turns the rewrite off.
func RewriteDockerHost(rawURL string) string {
	for _, host := range []string{"localhost", "127.0.0.1"} {
		if strings.Contains(rawURL, "://"+host) {
			return strings.Replace(rawURL, "://"+host, "://host.docker.internal", 1)
		}
	}
	return rawURL
}
