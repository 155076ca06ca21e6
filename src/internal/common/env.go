package common

import (
	"os"
	"strings"
)

const trueStr = "true"

// EnvEnabled reports whether the named environment variable is set to true
func EnvEnabled(name string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(name)), trueStr)
}
