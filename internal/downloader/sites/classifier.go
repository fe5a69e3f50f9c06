// Package sites decides which source URLs the relay accepts.
package sites

import (
	"net/url"
	"sort"
	"strings"
)

// domains maps a site name to the host suffixes that belong to it
var domains = map[string][]string{
	"youtube":     {"youtube.com", "youtu.be"},
	"vimeo":       {"vimeo.com"},
	"dailymotion": {"dailymotion.com"},
	"twitch":      {"twitch.tv"},
	"tiktok":      {"tiktok.com"},
	"instagram":   {"instagram.com"},
	"twitter":     {"twitter.com", "x.com"},
	"reddit":      {"reddit.com"},
}

// Known returns every site name the classifier recognizes, sorted
func Known() []string {
	names := make([]string, 0, len(domains))
	for name := range domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Match returns the site a URL belongs to. Malformed input yields ok=false.
func Match(rawURL string) (site string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", false
	}

	for name, suffixes := range domains {
		for _, d := range suffixes {
			if host == d || strings.HasSuffix(host, "."+d) {
				return name, true
			}
		}
	}
	return "", false
}

// IsSupported reports whether the URL belongs to a site enabled in the config
func IsSupported(rawURL string, enabled map[string]bool) bool {
	site, ok := Match(rawURL)
	if !ok {
		return false
	}
	return enabled[site]
}

// EnabledSites lists enabled site names in a stable order
func EnabledSites(enabled map[string]bool) []string {
	var names []string
	for _, name := range Known() {
		if enabled[name] {
			names = append(names, name)
		}
	}
	return names
}
