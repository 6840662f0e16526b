package probe

import "strings"

// Query names used in failures and logs.
const (
	QuerySessions = "qwinsta"
	QueryProcess  = "tasklist"
	QueryService  = "sc"
)

// Command is one external administrative query.
type Command struct {
	Name string
	Args []string
}

// String renders the command as a Windows command line. Arguments with
// spaces are double-quoted.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, a := range c.Args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

func quoteArg(a string) string {
	if a == "" {
		return `""`
	}
	if !strings.ContainsAny(a, " \t\"") {
		return a
	}
	return `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
}

// SessionCommand lists remote-desktop sessions on host.
func SessionCommand(host string) Command {
	return Command{Name: "qwinsta", Args: []string{"/server:" + host}}
}

// ProcessCommand asks host whether an image named name is running.
func ProcessCommand(host, name string) Command {
	return Command{Name: "tasklist", Args: []string{"/S", host, "/NH", "/FI", "IMAGENAME eq " + name}}
}

// ServiceCommand queries the state of service name on host.
func ServiceCommand(host, name string) Command {
	return Command{Name: "sc", Args: []string{`\\` + host, "query", name}}
}
