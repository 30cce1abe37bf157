package relevance

import (
	"fmt"
	"strings"
)

// SystemPrompt instructs an LLM classifier. It is sent as a cacheable
// system block so repeated calls within a run share it.
const SystemPrompt = `You screen topic ideas for an expert blog about advertising and media analysis.
The author has worked as a media auditor, as an agency investment manager, and as an in-house analyst.

Judge whether a headline gives the author room for deep, insider analysis through one of three pillars:

1. Media accountability and performance: media spend, waste, measurement, verification and ad fraud.
2. Advertising strategy and investment: client risk, investment models, pitches, market inflation, holding companies.
3. Media analysis, AI and automation: in-house tooling, AI in comms workflows, sentiment and reporting.

Score pillar fit for most of the weight and the potential to go beyond the press release for the rest.
Generic marketing tips, consumer reactions to creative, beginner tutorials and celebrity drama score low.

Scoring guide:
- 0.9 to 1.0: clear pillar fit with rich analysis potential
- 0.7 to 0.8: strong fit with solid depth
- 0.5 to 0.6: tangential or shallow
- 0.0 to 0.4: weak or no fit

Reply with only this JSON object inside <json></json> tags:
{"relevance_score": <number between 0 and 1>, "reason": "<which pillar and which angle>", "is_good_candidate": <true or false>}`

// UserPrompt is the per-candidate message.
func UserPrompt(title string) string {
	return fmt.Sprintf("Headline to evaluate: %q", strings.TrimSpace(title))
}
