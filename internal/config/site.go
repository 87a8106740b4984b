package config

import (
	"maps"
	"strings"
)

// SiteConfig holds request settings for a single host.
type SiteConfig struct {
	// Cookie is sent with every request to the host.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra HTTP headers sent with every request to the host.
	Headers map[string]string `yaml:"headers,omitempty"`

	// UserAgent overrides the global User-Agent for this host.
	UserAgent string `yaml:"userAgent,omitempty"`

	// SkipResources are glob patterns of sub-resource paths the static engine
	// does not fetch (e.g. "*.mp4", "/ads/*").
	SkipResources []string `yaml:"skipResources,omitempty"`
}

// File represents the structure of the .pageaudit configuration file.
type File struct {
	// Sites maps host names (without scheme, e.g. "example.com") to their settings.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every host unless a site entry overrides them.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the merged configuration for host.
// Lookup ignores case and a leading "www.".
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	if len(cf.Defaults.Headers) > 0 {
		result.Headers = maps.Clone(cf.Defaults.Headers)
	}

	site, ok := cf.lookup(host)
	if !ok {
		return result
	}

	if site.Cookie != "" {
		result.Cookie = site.Cookie
	}
	if site.UserAgent != "" {
		result.UserAgent = site.UserAgent
	}
	if len(site.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(site.Headers))
		}
		maps.Copy(result.Headers, site.Headers)
	}
	if len(site.SkipResources) > 0 {
		result.SkipResources = site.SkipResources
	}
	return result
}

func (cf *File) lookup(host string) (SiteConfig, bool) {
	host = strings.ToLower(host)
	if site, ok := cf.Sites[host]; ok {
		return site, true
	}
	for name, site := range cf.Sites {
		if strings.EqualFold(strings.TrimPrefix(name, "www."), strings.TrimPrefix(host, "www.")) {
			return site, true
		}
	}
	return SiteConfig{}, false
}
