package catalog

import (
	"fmt"
	"strings"
)

// ConfigurationError lists every inconsistency found while loading the catalog.
// It is raised at load time only.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid catalog: %s", strings.Join(e.Problems, "; "))
}
