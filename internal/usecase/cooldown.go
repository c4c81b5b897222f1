package usecase

import (
	"strings"
	"time"

	"voxcam/internal/domain"
)

// CooldownFilter drops blank, low-confidence and repeated final results.
type CooldownFilter struct {
	threshold int
	window    time.Duration

	lastText string
	lastAt   time.Time
}

func NewCooldownFilter(threshold int, window time.Duration) *CooldownFilter {
	return &CooldownFilter{threshold: threshold, window: window}
}

// Admit classifies a final result. Only VerdictAdmit updates the last admitted pair.
func (f *CooldownFilter) Admit(text string, score int, now time.Time) domain.Verdict {
	normalized := NormalizeCommand(text)
	if normalized == "" {
		return domain.VerdictRejectEmpty
	}
	if score <= f.threshold {
		return domain.VerdictRejectLowConfidence
	}
	if normalized == f.lastText && !f.lastAt.IsZero() && now.Sub(f.lastAt) <= f.window {
		return domain.VerdictRejectDuplicate
	}
	f.lastText = normalized
	f.lastAt = now
	return domain.VerdictAdmit
}

// Last returns the most recently admitted command.
func (f *CooldownFilter) Last() string {
	return f.lastText
}

// Reset forgets the last admitted command.
func (f *CooldownFilter) Reset() {
	f.lastText = ""
	f.lastAt = time.Time{}
}

// NormalizeCommand lowercases and collapses whitespace.
func NormalizeCommand(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
