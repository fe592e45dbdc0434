package filter

import (
	"path/filepath"
	"strings"
)

// ResultFilterConfig holds the configuration for upgrade result filtering
type ResultFilterConfig struct {
	// Namespace filtering
	WatchNamespaces   []string // Glob patterns for namespaces to watch (e.g., "datahub-*")
	ExcludeNamespaces []string // Glob patterns for namespaces to exclude (e.g., "kube-system")

	// Label filtering
	RequireLabels []string // Label keys that must be present (e.g., "app.kubernetes.io/part-of")
	ExcludeLabels []string // Label key=value pairs that cause exclusion (e.g., "upgrade.datahub.io/ignore=true")

	// Upgrade id filtering
	WatchUpgrades []string // Glob patterns for upgrade ids to watch (e.g., "SystemUpdate*")
}

// ResultFilter implements namespace, label and upgrade id based filtering
type ResultFilter struct {
	config ResultFilterConfig
}

// NewResultFilter creates a new result filter
func NewResultFilter(config ResultFilterConfig) *ResultFilter {
	return &ResultFilter{config: config}
}

// ShouldWatchNamespace returns true if the namespace should be watched
func (f *ResultFilter) ShouldWatchNamespace(namespace string) bool {
	// Check exclusions first
	for _, pattern := range f.config.ExcludeNamespaces {
		if matchGlob(pattern, namespace) {
			return false
		}
	}

	return matchesAny(f.config.WatchNamespaces, namespace)
}

// ShouldWatchResource returns true if the resource should be watched based on labels
func (f *ResultFilter) ShouldWatchResource(labels map[string]string) bool {
	for _, requiredKey := range f.config.RequireLabels {
		if _, exists := labels[requiredKey]; !exists {
			return false
		}
	}

	for _, exclusion := range f.config.ExcludeLabels {
		key, value := parseKeyValue(exclusion)
		if labelValue, exists := labels[key]; exists {
			if value == "" || labelValue == value {
				return false
			}
		}
	}

	return true
}

// ShouldWatchUpgrade returns true if results of the upgrade id should be watched
func (f *ResultFilter) ShouldWatchUpgrade(upgradeID string) bool {
	return matchesAny(f.config.WatchUpgrades, upgradeID)
}

// Matches combines all checks
func (f *ResultFilter) Matches(namespace, upgradeID string, labels map[string]string) bool {
	return f.ShouldWatchNamespace(namespace) &&
		f.ShouldWatchResource(labels) &&
		f.ShouldWatchUpgrade(upgradeID)
}

// matchesAny is true for an empty pattern list
func matchesAny(patterns []string, s string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if matchGlob(pattern, s) {
			return true
		}
	}
	return false
}

// matchGlob performs a simple glob match (supports * wildcard)
func matchGlob(pattern, s string) bool {
	matched, err := filepath.Match(pattern, s)
	if err != nil {
		return false
	}
	return matched
}

// parseKeyValue parses a "key=value" or "key" string
func parseKeyValue(s string) (key, value string) {
	key, value, _ = strings.Cut(s, "=")
	return
}

// DefaultExcludedNamespaces returns the default list of namespaces to exclude
func DefaultExcludedNamespaces() []string {
	return []string{
		"kube-system",
		"kube-public",
		"kube-node-lease",
	}
}

// SplitAndTrim splits a comma-separated string and trims whitespace from each element
func SplitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
