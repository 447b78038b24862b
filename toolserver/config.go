package toolserver

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"
)

// ServerConfig describes one remote tool server.
type ServerConfig struct {
	// Name is the server identity referenced by agent definitions.
	Name string

	// URL is the server endpoint. May contain ${ENV} references.
	URL string

	// Transport selects the dialer's wire protocol: sse|http|stdio.
	// Default: "http"
	Transport string

	// Headers are sent on every request. Values may contain ${ENV}
	// references, typically for API keys.
	Headers map[string]string

	// Timeout bounds dial and per-request time inside the dialer.
	// Default: 30 seconds
	Timeout time.Duration
}

// Validate checks the config for required fields.
func (c ServerConfig) Validate() error {
	if c.Name == "" {
		return ErrMissingName
	}
	if c.URL == "" {
		return fmt.Errorf("%w: server %q", ErrMissingURL, c.Name)
	}
	return nil
}

// withDefaults returns a copy with defaults applied.
func (c ServerConfig) withDefaults() ServerConfig {
	if c.Transport == "" {
		c.Transport = "http"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandConfig expands ${ENV} references in the URL and header values.
// A reference to a variable missing from the environment is an error:
// silently dialing with an empty credential is worse than failing loudly.
func ExpandConfig(c ServerConfig) (ServerConfig, error) {
	url, err := expandEnvStrict(c.URL)
	if err != nil {
		return c, fmt.Errorf("toolserver: server %q URL: %w", c.Name, err)
	}
	c.URL = url

	if len(c.Headers) > 0 {
		headers := make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			expanded, err := expandEnvStrict(v)
			if err != nil {
				return c, fmt.Errorf("toolserver: server %q header %q: %w", c.Name, k, err)
			}
			headers[k] = expanded
		}
		c.Headers = headers
	}
	return c, nil
}

// expandEnvStrict expands environment variables in s.
//
// Semantics:
//   - `$VAR` and `${VAR}` are expanded via os.ExpandEnv.
//   - If `${VAR}` is present but VAR is missing from the environment, it errors.
//   - `$$` emits a literal `$` (escape hatch).
func expandEnvStrict(s string) (string, error) {
	const dollarSentinel = "\x00AGENTCACHE_DOLLAR\x00"
	s = strings.ReplaceAll(s, "$$", dollarSentinel)

	missing := make(map[string]struct{})
	for _, match := range envVarPattern.FindAllStringSubmatch(s, -1) {
		key := match[1]
		if _, ok := os.LookupEnv(key); !ok {
			missing[key] = struct{}{}
		}
	}
	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", fmt.Errorf("missing required environment variables: %s", strings.Join(keys, ", "))
	}

	s = os.ExpandEnv(s)
	s = strings.ReplaceAll(s, dollarSentinel, "$")
	return s, nil
}
