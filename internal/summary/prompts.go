package summary

import "strings"

const systemPrompt = "You are an assistant for a retail bank contact centre. Answer clearly and briefly."

const callSummaryTemplate = `Summarize the NEW segment of a customer service call in 3 to 4 bullet points.
Each bullet must name the client issue, the agent action and the next step.
After the bullets, write a short CRM paragraph.

Current rolling call summary (do not repeat it):
{{current_summary}}

New transcript segment:
{{transcript}}`

const cleanupTemplate = `Convert the rough call summary below into STRICT JSON.

Return JSON only:
{
  "bullets": [
    {"client_issue": "...", "agent_action": "...", "next_step": "..."}
  ],
  "crm_paragraph": "..."
}

Rough summary:
{{rough_summary}}`

const historyTemplate = `Update the ongoing client history summary using the new call segment,
the client profile and the existing history summary.

Rules:
Keep it concise and stable.
Track unresolved items.
Only include facts supported by the inputs.
If nothing new, return the existing summary unchanged.

Client profile:
{{profile}}

Existing client history summary:
{{history}}

New transcript segment:
{{transcript}}

Output JSON only:
{"history_summary": "..."}`

const promotionsTemplate = `Using only the promotion catalog provided, recommend up to 2 relevant promotions.

Rules:
Select promotions only from the catalog and copy their promo_id exactly.
Do not invent promotions.
If none apply, return an empty list with no_relevant_flag true.

Transcript:
{{transcript}}

Client profile:
{{profile}}

Promotion catalog:
{{catalog}}

Output JSON only:
{
  "recommendations": [
    {
      "promo_id": "...",
      "name": "...",
      "expiry": "...",
      "description": "...",
      "fulfillment_steps": "...",
      "reason": "..."
    }
  ],
  "no_relevant_flag": false
}`

func render(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
