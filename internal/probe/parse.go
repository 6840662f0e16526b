package probe

import "strings"

// ParseSessions extracts account names from qwinsta output. The first line
// is the header. A row counts when its session name starts with prefix
// (case-insensitive); the second token is the account. malformed counts
// matching rows that carry no account token.
func ParseSessions(output, prefix string) (users []string, malformed int) {
	users = []string{}
	prefix = strings.ToLower(prefix)

	lines := strings.Split(output, "\n")
	if len(lines) <= 1 {
		return users, 0
	}

	for _, line := range lines[1:] {
		fields := strings.Fields(strings.TrimRight(line, "\r"))
		if len(fields) == 0 {
			continue
		}

		// ">" marks the caller's own session and may stand alone.
		if fields[0] == ">" {
			fields = fields[1:]
			if len(fields) == 0 {
				continue
			}
		}
		session := strings.TrimPrefix(fields[0], ">")

		if !strings.HasPrefix(strings.ToLower(session), prefix) {
			continue
		}
		if len(fields) < 2 {
			malformed++
			continue
		}
		users = append(users, fields[1])
	}

	return users, malformed
}

// ProcessRunning reports whether tasklist output mentions name.
func ProcessRunning(output, name string) bool {
	return name != "" && strings.Contains(strings.ToLower(output), strings.ToLower(name))
}

// ServiceRunning reports whether sc query output shows the RUNNING state.
func ServiceRunning(output string) bool {
	return strings.Contains(output, "RUNNING")
}
