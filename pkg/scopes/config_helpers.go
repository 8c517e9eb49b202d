package scopes

import "strings"

// ConfigString returns the trimmed string value for key from scope.Config or a fallback.
func ConfigString(cfg Scope, key, fallback string) string {
	if cfg.Config != nil {
		if raw, ok := cfg.Config[key]; ok {
			if val, ok := raw.(string); ok {
				if trimmed := strings.TrimSpace(val); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return fallback
}

const (
	ConfigUserAgentKey      = "user_agent"
	ConfigAcceptKey         = "accept"
	ConfigAcceptLanguageKey = "accept_language"
	ConfigRefererKey        = "referer"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Headers builds the common request headers from a scope config (skips empty values).
func Headers(cfg Scope) map[string]string {
	headers := make(map[string]string, 4)

	headers["User-Agent"] = ConfigString(cfg, ConfigUserAgentKey, defaultUserAgent)
	if v := ConfigString(cfg, ConfigAcceptKey, ""); v != "" {
		headers["Accept"] = v
	}
	if v := ConfigString(cfg, ConfigAcceptLanguageKey, ""); v != "" {
		headers["Accept-Language"] = v
	}
	if v := ConfigString(cfg, ConfigRefererKey, ""); v != "" {
		headers["Referer"] = v
	}

	return headers
}
