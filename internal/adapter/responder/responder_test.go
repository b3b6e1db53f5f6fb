package responder

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/convoke-ai/convoke/internal/domain/consensus"
	"github.com/convoke-ai/convoke/internal/domain/conversation"
	"github.com/convoke-ai/convoke/internal/domain/risk"
	"github.com/convoke-ai/convoke/internal/port/generation"
)

// stubSource is a generation.Source returning a fixed reply or error.
type stubSource struct {
	reply    string
	err      error
	lastMode string
}

func (s *stubSource) Name() string    { return "stub" }
func (s *stubSource) Weight() float64 { return 0.9 }
func (s *stubSource) Generate(_ context.Context, _ []generation.Message, mode string) (string, error) {
	s.lastMode = mode
	return s.reply, s.err
}

func stateWithMessage(msg string) *conversation.State {
	state := conversation.NewState("sess-1", "user-1", conversation.ModeOnline)
	state.Turns = append(state.Turns, conversation.Turn{
		Role: "user", Content: msg, Timestamp: time.Now(),
	})
	return state
}

func TestPersonaRespond(t *testing.T) {
	p := NewPersona("coordinator", CoordinatorPrompt, &stubSource{reply: "done"},
		risk.NewEngine(risk.DefaultKeywords()), slog.Default())

	res, err := p.Respond(context.Background(), stateWithMessage("what's on my calendar today"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if res.Response != "done" {
		t.Errorf("Response = %q, want done", res.Response)
	}
	if res.RequiresApproval {
		t.Error("low-risk message should not require approval")
	}
}

func TestPersonaPassesConversationMode(t *testing.T) {
	src := &stubSource{reply: "ok"}
	p := NewPersona("coordinator", CoordinatorPrompt, src,
		risk.NewEngine(risk.DefaultKeywords()), slog.Default())

	state := conversation.NewState("sess-1", "user-1", conversation.ModeOffline)
	state.Turns = append(state.Turns, conversation.Turn{
		Role: "user", Content: "hello", Timestamp: time.Now(),
	})

	if _, err := p.Respond(context.Background(), state); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if src.lastMode != string(conversation.ModeOffline) {
		t.Errorf("mode = %q, want offline", src.lastMode)
	}
}

func TestPersonaHighRiskRequiresApproval(t *testing.T) {
	p := NewPersona("coordinator", CoordinatorPrompt, &stubSource{reply: "ok"},
		risk.NewEngine(risk.DefaultKeywords()), slog.Default())

	state := stateWithMessage("permanently delete all my old emails")
	state.Intent = "email"

	res, err := p.Respond(context.Background(), state)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !res.RequiresApproval {
		t.Fatal("high-risk message should require approval")
	}
	if res.Approval == nil {
		t.Fatal("approval payload missing")
	}
	if res.Approval.ActionType != "send_email" {
		t.Errorf("ActionType = %q, want send_email", res.Approval.ActionType)
	}
}

func TestPersonaGenerationFailureDegrades(t *testing.T) {
	p := NewPersona("archivist", ArchivistPrompt, &stubSource{err: errors.New("proxy down")},
		risk.NewEngine(risk.DefaultKeywords()), slog.Default())

	res, err := p.Respond(context.Background(), stateWithMessage("what is a merkle tree"))
	if err != nil {
		t.Fatalf("Respond should not propagate generation errors, got %v", err)
	}
	if res.Response == "" {
		t.Error("degraded result must still carry a response")
	}
	if res.Metadata["error"] != true {
		t.Error("degraded result must set error metadata")
	}
}

func TestSysOpsDeniesDestructiveCommand(t *testing.T) {
	s := NewSysOps(risk.DefaultCommandPolicy(), &stubSource{reply: "x"}, slog.Default())

	res, err := s.Respond(context.Background(), stateWithMessage("run `rm -rf /tmp`"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if res.RequiresApproval {
		t.Error("denied command must not raise an approval request")
	}
	if res.Metadata["denied"] != true {
		t.Errorf("metadata = %v, want denied=true", res.Metadata)
	}
	if res.Metadata["category"] != "destructive" {
		t.Errorf("category = %v, want destructive", res.Metadata["category"])
	}
}

func TestSysOpsAllowsReadOnlyCommand(t *testing.T) {
	s := NewSysOps(risk.DefaultCommandPolicy(), &stubSource{reply: "x"}, slog.Default())

	res, err := s.Respond(context.Background(), stateWithMessage("run `ls -la`"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if res.RequiresApproval {
		t.Error("read-only command should not require approval")
	}
	if res.Metadata["denied"] == true {
		t.Error("read-only command should not be denied")
	}
}

func TestSysOpsGatesMediumCommand(t *testing.T) {
	s := NewSysOps(risk.DefaultCommandPolicy(), &stubSource{reply: "x"}, slog.Default())

	res, err := s.Respond(context.Background(), stateWithMessage("run `mkdir /tmp/newdir`"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !res.RequiresApproval {
		t.Fatal("medium-risk command must require approval")
	}
	if res.Approval.ActionType != "execute_command" {
		t.Errorf("ActionType = %q, want execute_command", res.Approval.ActionType)
	}
	if res.Approval.RiskTier != "medium" {
		t.Errorf("RiskTier = %q, want medium", res.Approval.RiskTier)
	}
}

func TestSysOpsConversesWithoutCommand(t *testing.T) {
	s := NewSysOps(risk.DefaultCommandPolicy(), &stubSource{reply: "all healthy"}, slog.Default())

	res, err := s.Respond(context.Background(), stateWithMessage("how is the server doing"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if res.Response != "all healthy" {
		t.Errorf("Response = %q, want all healthy", res.Response)
	}
}

func TestExtractCommand(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"run `df -h`", "df -h"},
		{"please run df -h. thanks", "df -h"},
		{"execute uptime", "uptime"},
		{"rerun the query", ""},
		{"how is the disk looking", ""},
		{"run the command `uptime` now", "uptime"},
	}
	for _, tt := range tests {
		if got := ExtractCommand(tt.message); got != tt.want {
			t.Errorf("ExtractCommand(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}

// stubValidator returns a fixed consensus verdict.
type stubValidator struct {
	result      *consensus.ValidationResult
	responderID string
}

func (s *stubValidator) ValidateResponse(_ context.Context, _, _, responderID string) *consensus.ValidationResult {
	s.responderID = responderID
	return s.result
}

func TestValidatorRespond(t *testing.T) {
	stub := &stubValidator{result: &consensus.ValidationResult{
		Score:             0.85,
		HallucinationRisk: consensus.HallucinationLow,
		Agreements:        []string{consensus.AgreementNote},
		Sources:           []string{"primary", "secondary", "tertiary"},
	}}
	v := NewValidator(stub, slog.Default())

	res, err := v.Respond(context.Background(), stateWithMessage("validate: water boils at 100C"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if res.Response == "" {
		t.Fatal("expected summary response")
	}
	if res.Metadata["validation"] == nil {
		t.Error("validation result should be attached to metadata")
	}
	if stub.responderID != "validator" {
		t.Errorf("responderID = %q, want validator", stub.responderID)
	}
}

func TestValidatorNeutralVerdictStillAnswers(t *testing.T) {
	// The consensus service degrades to a neutral 0.5 verdict instead of
	// erroring; the responder must render it as an ordinary summary.
	v := NewValidator(&stubValidator{result: &consensus.ValidationResult{
		Score:             0.5,
		Reasoning:         "No consensus could be built; verdict is neutral.",
		Disagreements:     []string{consensus.DisagreementNote},
		HallucinationRisk: consensus.HallucinationMedium,
		Sources:           []string{},
	}}, slog.Default())

	res, err := v.Respond(context.Background(), stateWithMessage("validate this"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if res.Response == "" {
		t.Fatal("neutral verdict must still produce a summary")
	}
}
