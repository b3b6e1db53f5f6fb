package risk

import "strings"

// CommandPolicy gates literal system-command execution using fixed
// allow/deny verb lists grouped by category. The lists are part of the
// compatibility surface and are injected as configuration.
type CommandPolicy struct {
	Allow map[string][]string `yaml:"allow"`
	Deny  map[string][]string `yaml:"deny"`
}

// DefaultCommandPolicy returns the stock allow/deny verb tables.
func DefaultCommandPolicy() CommandPolicy {
	return CommandPolicy{
		Allow: map[string][]string{
			"filesystem":  {"mkdir", "ls", "dir", "tree", "find", "locate"},
			"system_info": {"systeminfo", "whoami", "hostname", "uptime", "uname"},
			"process":     {"tasklist", "ps", "top", "htop"},
			"network":     {"ping", "nslookup", "ipconfig", "ifconfig", "netstat"},
			"disk":        {"df", "du", "diskutil", "fsutil"},
		},
		Deny: map[string][]string{
			"destructive":    {"rm", "del", "rmdir", "rd", "format", "fdisk", "mkfs"},
			"system_modify":  {"regedit", "reg", "systemctl", "service", "chkdsk"},
			"network_modify": {"iptables", "netsh", "route"},
			"user_modify":    {"useradd", "userdel", "passwd", "net user"},
		},
	}
}

// Gate reports whether a command string may be executed. A command is
// allowed iff it starts with an allow-listed verb and contains no
// deny-listed verb; a deny match always wins. The returned category names
// the matched list for operator-facing messages.
func (p CommandPolicy) Gate(command string) (allowed bool, category string) {
	lower := strings.ToLower(strings.TrimSpace(command))
	if lower == "" {
		return false, ""
	}

	for cat, verbs := range p.Deny {
		for _, verb := range verbs {
			if containsVerb(lower, verb) {
				return false, cat
			}
		}
	}

	for cat, verbs := range p.Allow {
		for _, verb := range verbs {
			if strings.HasPrefix(lower, verb) {
				return true, cat
			}
		}
	}

	return false, ""
}

// Classify returns the allow-list category a command falls under, or
// "unknown" when no allow verb matches.
func (p CommandPolicy) Classify(command string) string {
	lower := strings.ToLower(command)
	for cat, verbs := range p.Allow {
		for _, verb := range verbs {
			if containsVerb(lower, verb) {
				return cat
			}
		}
	}
	return "unknown"
}

// readOnlyVerbs and benignVerbs drive the three-bucket command risk table:
// read-only verbs are low risk, benign mutation/network verbs are medium,
// everything else defaults to medium with a review note.
var (
	readOnlyVerbs = []string{"ls", "dir", "whoami", "hostname", "uptime"}
	benignVerbs   = []string{"mkdir", "ping", "find", "tasklist"}
)

// AssessCommand classifies an already-gated command into a risk assessment
// using the fixed three-bucket table.
func (p CommandPolicy) AssessCommand(command string) Assessment {
	lower := strings.ToLower(command)

	for _, verb := range readOnlyVerbs {
		if containsVerb(lower, verb) {
			return Assessment{
				Tier:            TierLow,
				Impact:          "No system modification, read-only operation",
				Reversible:      true,
				ExpectedOutcome: "Display information without making changes",
			}
		}
	}

	for _, verb := range benignVerbs {
		if containsVerb(lower, verb) {
			return Assessment{
				Tier:            TierMedium,
				Impact:          "Limited system modification or network activity",
				Reversible:      true,
				ExpectedOutcome: "Create directories or gather system information",
			}
		}
	}

	return Assessment{
		Tier:            TierMedium,
		Impact:          "Potential system impact, requires review",
		Reversible:      true,
		ExpectedOutcome: "Execute system command with monitoring",
	}
}

// containsVerb matches verb as a whole word anywhere in the command, so
// "rm" matches "sudo rm -rf" but not "format" inside "informative".
func containsVerb(command, verb string) bool {
	idx := 0
	for {
		i := strings.Index(command[idx:], verb)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(verb)
		beforeOK := start == 0 || !isWordChar(command[start-1])
		afterOK := end == len(command) || !isWordChar(command[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
		if idx >= len(command) {
			return false
		}
	}
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
