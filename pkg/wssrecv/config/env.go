package config

import (
	"os"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// GetEnvObject returns a cty object containing all environment variables
// as attributes, suitable for providing to an HCL evaluation context as "env".
func GetEnvObject() cty.Value {
	return envObject(os.Environ())
}

func envObject(environ []string) cty.Value {
	envMap := make(map[string]cty.Value, len(environ))

	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		envMap[sanitizeEnvVarName(key)] = cty.StringVal(value)
	}

	return cty.ObjectVal(envMap)
}

// sanitizeEnvVarName converts an environment variable name into a valid HCL
// identifier: letters, digits, underscores and hyphens, not starting with a digit
// or hyphen. Invalid characters become underscores.
func sanitizeEnvVarName(name string) string {
	if name == "" {
		return "_"
	}

	var result strings.Builder
	for i, r := range name {
		valid := isLetter(r) || r == '_' || (i > 0 && (isDigit(r) || r == '-'))
		if valid {
			result.WriteRune(r)
		} else {
			result.WriteRune('_')
		}
	}

	return result.String()
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
