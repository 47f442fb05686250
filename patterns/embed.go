// Package patterns provides the embedded default leak-pattern pack.
// The YAML file is versioned data, not code: deployments can override it
// with SECGATE_PATTERN_PACK without rebuilding the binary.
package patterns

import _ "embed"

//go:embed secgate_default.yaml
var defaultPackYAML []byte

// DefaultPackYAML returns the embedded default pattern pack.
func DefaultPackYAML() []byte { return defaultPackYAML }
