// Package keyword implements the intent classification port with a
// rule-based keyword matcher. It needs no model call, which keeps the
// routing stage cheap and deterministic; repeated messages are served
// from the cache.
package keyword

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/convoke-ai/convoke/internal/domain/intent"
	"github.com/convoke-ai/convoke/internal/port/cache"
)

// rule holds the match terms for one intent label. Phrases (terms with a
// space) match as substrings; single words match on word boundaries.
type rule struct {
	label string
	terms []string
}

// Rules are checked in order; the first label whose score is the maximum
// wins, so more specific intents come before broader ones.
var defaultRules = []rule{
	{intent.LabelValidationRequest, []string{"validate", "verify", "fact check", "fact-check", "double check", "is this true", "confirm that"}},
	{intent.LabelConsensusBuilding, []string{"consensus", "multiple opinions", "second opinion", "cross-check", "compare answers"}},
	{intent.LabelSystemCommand, []string{"run", "execute", "command", "shell", "terminal", "restart", "kill"}},
	{intent.LabelSystemMonitoring, []string{"cpu", "memory", "disk", "uptime", "load", "system status", "processes", "health"}},
	{intent.LabelEmail, []string{"email", "inbox", "compose", "reply", "mail"}},
	{intent.LabelCalendar, []string{"schedule", "meeting", "calendar", "appointment", "reschedule"}},
	{intent.LabelTaskManagement, []string{"task", "todo", "to-do", "remind", "reminder", "checklist"}},
	{intent.LabelDocument, []string{"document", "pdf", "summarize", "extract", "parse", "file"}},
	{intent.LabelContentGeneration, []string{"write", "draft", "generate", "compose a", "create a post"}},
	{intent.LabelFinancialAnalysis, []string{"portfolio", "invest", "returns", "allocation", "budget"}},
	{intent.LabelMarketData, []string{"stock price", "market", "quote", "ticker", "exchange rate"}},
	{intent.LabelInvestmentAdvice, []string{"should i buy", "should i sell", "investment advice", "worth investing"}},
	{intent.LabelKnowledgeQuery, []string{"what is", "what are", "explain", "how does", "why does", "tell me about"}},
}

// Classifier is a cached, rule-based intent classifier.
type Classifier struct {
	rules []rule
	cache cache.Cache
	ttl   time.Duration
	log   *slog.Logger
}

// New creates a Classifier. The cache is optional; pass nil to disable
// caching.
func New(c cache.Cache, ttl time.Duration, log *slog.Logger) *Classifier {
	return &Classifier{
		rules: defaultRules,
		cache: c,
		ttl:   ttl,
		log:   log,
	}
}

// Classify determines the intent of the message. History is currently
// used only as a tiebreaker: if the message alone is ambiguous, the
// previous user turns contribute matches at reduced weight.
func (c *Classifier) Classify(ctx context.Context, message string, history []string) (*intent.Classification, error) {
	key := cacheKey(message)
	if c.cache != nil {
		if data, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			var cached intent.Classification
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	result := c.classify(message, history)

	if c.cache != nil {
		if data, err := json.Marshal(result); err == nil {
			if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
				c.log.Debug("intent cache set failed", "error", err)
			}
		}
	}
	return result, nil
}

func (c *Classifier) classify(message string, history []string) *intent.Classification {
	text := strings.ToLower(message)

	best := intent.Classification{
		Label:      intent.LabelGeneral,
		Confidence: 0.4,
		Reasoning:  "no intent keywords matched",
	}
	bestScore := 0.0

	for _, r := range c.rules {
		score, matched := scoreRule(r, text)
		if score == 0 {
			continue
		}
		// Prior user turns nudge ambiguous messages toward the running topic.
		for _, prev := range history {
			prevScore, _ := scoreRule(r, strings.ToLower(prev))
			score += prevScore * 0.25
		}
		if score > bestScore {
			bestScore = score
			best = intent.Classification{
				Label:      r.label,
				Confidence: confidence(score),
				Reasoning:  "matched: " + strings.Join(matched, ", "),
			}
		}
	}
	return &best
}

// scoreRule counts term matches in the text.
func scoreRule(r rule, text string) (float64, []string) {
	var score float64
	var matched []string
	for _, term := range r.terms {
		if strings.Contains(term, " ") || strings.Contains(term, "-") {
			if strings.Contains(text, term) {
				score += 1.5 // phrases are stronger signals than single words
				matched = append(matched, term)
			}
		} else if containsWord(text, term) {
			score++
			matched = append(matched, term)
		}
	}
	return score, matched
}

// confidence maps a match score to [0.55, 0.95].
func confidence(score float64) float64 {
	c := 0.55 + 0.1*score
	if c > 0.95 {
		c = 0.95
	}
	return c
}

// containsWord reports whether text contains word bounded by non-letters.
func containsWord(text, word string) bool {
	for start := 0; ; {
		i := strings.Index(text[start:], word)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(word)
		leftOK := i == 0 || !isLetter(text[i-1])
		rightOK := end == len(text) || !isLetter(text[end])
		if leftOK && rightOK {
			return true
		}
		start = i + 1
	}
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func cacheKey(message string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(message))))
	return "intent:" + hex.EncodeToString(sum[:8])
}
