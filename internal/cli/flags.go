package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/rileyhilliard/rdpmon/internal/errors"
)

// parseDurationFlag parses a duration flag such as --interval or --timeout.
// Returns zero if the flag is empty.
func parseDurationFlag(name, flag string) (time.Duration, error) {
	if flag == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(flag)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("'%s' doesn't look like a valid --%s", flag, name),
			"Try something like 30s, 2m, or 1m30s.")
	}
	if d <= 0 {
		return 0, errors.New(errors.ErrConfig,
			fmt.Sprintf("--%s must be positive, got %s", name, flag),
			"Try something like 30s, 2m, or 1m30s.")
	}
	return d, nil
}

// splitNames accepts names as separate args or comma-separated, trimming
// blanks. "server processes DC01 a.exe,b.exe" and "... a.exe b.exe" agree.
func splitNames(args []string) []string {
	out := []string{}
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
