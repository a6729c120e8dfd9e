package telemetry

import (
	"fmt"
	"sort"
	"strings"
)

// Process is one entry of a process listing.
type Process struct {
	PID     int32
	Name    string
	Cmdline string
}

type pattern struct {
	text      string
	onCmdline bool
}

// Matcher maps a process listing to named signature sets. A pattern
// matches case-insensitively as a substring of the process name, or of
// the full command line when the pattern contains a slash or a space.
type Matcher struct {
	sets        map[string][]pattern
	needCmdline bool
}

// NewMatcher builds a matcher from signature set name -> patterns.
func NewMatcher(signatures map[string][]string) *Matcher {
	m := &Matcher{sets: make(map[string][]pattern, len(signatures))}

	for name, raw := range signatures {
		for _, p := range raw {
			p = strings.ToLower(strings.TrimSpace(p))
			if p == "" {
				continue
			}
			onCmdline := strings.ContainsAny(p, "/ ")
			m.needCmdline = m.needCmdline || onCmdline
			m.sets[name] = append(m.sets[name], pattern{text: p, onCmdline: onCmdline})
		}
	}

	return m
}

// Empty reports whether there is nothing to match.
func (m *Matcher) Empty() bool {
	return len(m.sets) == 0
}

// NeedsCmdline reports whether any pattern inspects command lines, so the
// lister can skip reading them otherwise.
func (m *Matcher) NeedsCmdline() bool {
	return m.needCmdline
}

// Match returns, per signature set with at least one hit, the sorted
// identities ("name(pid)") of the matching processes.
func (m *Matcher) Match(procs []Process) map[string][]string {
	out := make(map[string][]string)

	for _, proc := range procs {
		name := strings.ToLower(proc.Name)
		cmdline := strings.ToLower(proc.Cmdline)

		for set, patterns := range m.sets {
			for _, p := range patterns {
				subject := name
				if p.onCmdline {
					subject = cmdline
				}
				if subject != "" && strings.Contains(subject, p.text) {
					out[set] = append(out[set], fmt.Sprintf("%s(%d)", proc.Name, proc.PID))
					break
				}
			}
		}
	}

	for set := range out {
		sort.Strings(out[set])
	}

	return out
}
