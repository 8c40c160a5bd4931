package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/Reddy-45/siem/internal/domain"
	"github.com/Reddy-45/siem/pkg/sanitize"
)

// ComposePrompt builds the text-generation prompt for a fresh block.
// Identity and enrichment strings come from untrusted input and are
// sanitized before they are embedded.
func ComposePrompt(trigger domain.Trigger, enrichment domain.Enrichment) string {
	var b strings.Builder

	b.WriteString("You are a security analyst. Write a short incident report (at most ")
	b.WriteString("150 words, plain text, no markdown) for the following brute-force detection.\n\n")

	fmt.Fprintf(&b, "Source address: %s\n", trigger.SourceAddress)
	fmt.Fprintf(&b, "Failed attempts in window: %d\n", trigger.Count)
	if trigger.Identity != "" {
		fmt.Fprintf(&b, "Targeted account: \"%s\"\n", sanitize.PromptField(trigger.Identity, sanitize.DefaultMaxFieldLength))
	}
	if !trigger.FirstSeen.IsZero() {
		fmt.Fprintf(&b, "First failure: %s\n", trigger.FirstSeen.UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, "Last failure: %s\n", trigger.LastSeen.UTC().Format(time.RFC3339))
	}
	if !enrichment.IsEmpty() {
		location := joinNonEmpty(", ",
			sanitize.PromptField(enrichment.City, sanitize.DefaultMaxFieldLength),
			sanitize.PromptField(enrichment.Country, sanitize.DefaultMaxFieldLength))
		if location != "" {
			fmt.Fprintf(&b, "Location: %s\n", location)
		}
		if enrichment.Network != "" {
			fmt.Fprintf(&b, "Network: %s\n", sanitize.PromptField(enrichment.Network, sanitize.DefaultMaxFieldLength))
		}
	}

	b.WriteString("\nThe address has already been blocked. Summarise what happened, the likely ")
	b.WriteString("intent, and recommended follow-up actions.\n")
	return b.String()
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
