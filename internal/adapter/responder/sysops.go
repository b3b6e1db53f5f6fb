package responder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/convoke-ai/convoke/internal/domain/conversation"
	"github.com/convoke-ai/convoke/internal/domain/risk"
	"github.com/convoke-ai/convoke/internal/port/generation"
)

// SysOps is the system-operations responder. It answers monitoring
// questions through its persona and gates every literal command behind
// the command policy: denied categories are refused outright, low-risk
// read-only commands pass, everything else raises an approval request.
type SysOps struct {
	policy risk.CommandPolicy
	source generation.Source
	log    *slog.Logger
}

// NewSysOps creates the system-operations responder.
func NewSysOps(policy risk.CommandPolicy, source generation.Source, log *slog.Logger) *SysOps {
	return &SysOps{
		policy: policy,
		source: source,
		log:    log.With("responder", "sysops"),
	}
}

// ID returns the responder identifier.
func (s *SysOps) ID() string { return "sysops" }

// Respond handles one system-operations turn.
func (s *SysOps) Respond(ctx context.Context, state *conversation.State) (*conversation.ResponderResult, error) {
	message := state.LastUserMessage()
	command := ExtractCommand(message)

	if command == "" {
		return s.converse(ctx, state)
	}

	result := &conversation.ResponderResult{
		Metadata: map[string]any{"responder": "sysops", "command": command},
	}

	allowed, category := s.policy.Gate(command)
	result.Metadata["category"] = category
	if !allowed {
		s.log.Warn("command denied", "command", command, "category", category)
		result.Response = fmt.Sprintf(
			"I can't run that: %q falls in the %s category, which is blocked by policy.",
			command, category)
		result.Metadata["denied"] = true
		return result, nil
	}

	assessment := s.policy.AssessCommand(command)
	result.Metadata["risk_tier"] = string(assessment.Tier)

	if assessment.Tier == risk.TierLow {
		result.Response = fmt.Sprintf("Running %q: %s.", command, assessment.ExpectedOutcome)
		return result, nil
	}

	result.RequiresApproval = true
	result.Approval = &conversation.ApprovalPayload{
		ActionType:  "execute_command",
		Description: fmt.Sprintf("Execute command: %s", command),
		Payload: map[string]any{
			"command":          command,
			"category":         category,
			"impact":           assessment.Impact,
			"reversible":       assessment.Reversible,
			"expected_outcome": assessment.ExpectedOutcome,
		},
		RiskTier: string(assessment.Tier),
	}
	result.Response = fmt.Sprintf(
		"The command %q needs approval before I run it (%s risk: %s).",
		command, assessment.Tier, assessment.Impact)
	return result, nil
}

// converse answers non-command turns through the persona source.
func (s *SysOps) converse(ctx context.Context, state *conversation.State) (*conversation.ResponderResult, error) {
	result := &conversation.ResponderResult{
		Metadata: map[string]any{"responder": "sysops"},
	}

	reply, err := s.source.Generate(ctx, buildMessages(SysOpsPrompt, state.Turns), string(state.Mode))
	if err != nil {
		s.log.Error("generation failed", "error", err)
		result.Response = "I couldn't check that right now. Please try again."
		result.Metadata["error"] = true
		result.Metadata["error_detail"] = err.Error()
		return result, nil
	}
	result.Response = reply
	return result, nil
}

// ExtractCommand pulls a literal shell command out of a message. Backtick
// quoting wins; otherwise the text after a leading "run" or "execute"
// verb is taken up to the end of the sentence.
func ExtractCommand(message string) string {
	if start := strings.Index(message, "`"); start >= 0 {
		rest := message[start+1:]
		if end := strings.Index(rest, "`"); end > 0 {
			return strings.TrimSpace(rest[:end])
		}
	}

	lower := strings.ToLower(message)
	for _, verb := range []string{"run ", "execute "} {
		idx := strings.Index(lower, verb)
		if idx < 0 {
			continue
		}
		if idx > 0 && isWordByte(lower[idx-1]) {
			continue
		}
		cmd := message[idx+len(verb):]
		if end := strings.IndexAny(cmd, ".?!\n"); end >= 0 {
			cmd = cmd[:end]
		}
		cmd = strings.TrimSpace(cmd)
		cmd = strings.TrimPrefix(cmd, "the command ")
		if cmd != "" {
			return cmd
		}
	}
	return ""
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_'
}
