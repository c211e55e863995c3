package parser

import (
	"fmt"
	"strings"
)

// Instructions is the shared prompt prefix sent with every model call.
const Instructions = `You are an expert data extraction assistant. Your task is to parse the provided markdown text from Polymarket and convert it into a structured JSON object that **preserves market groupings**.

The final output must be a single JSON object with a root key "markets", which is an array. This array can contain two different types of objects:

**1. For Grouped Markets (like the NYC Mayoral Election):**
When you see a category title followed by a list of related sub-markets, create a **group object**. This object must have the following structure:
` + "```json" + `
{
  "group_title": "string",
  "markets": [
    {
      "market_title": "string",
      "market_type": "binary",
      "options": [ { "name": "Yes", "odds": float }, { "name": "No", "odds": float } ]
    }
  ]
}
` + "```" + `
- The "market_title" for each item inside the group should be a full question combining the subject and the group title.

**2. For Standalone Markets (like the Fed or Tariff questions):**
For markets that are not part of a group, create a **standalone market object**. This object must have the following structure:
` + "```json" + `
{
  "market_title": "string",
  "market_type": "binary" | "multi_option",
  "options": [ { "name": "string", "odds": float } ]
}
` + "```" + `

**General Rules for all markets:**
- For all binary markets, the provided percentage is for the "Yes" option. You must calculate the "No" option as (100% - Yes%).
- Convert all percentages to decimals (e.g., 81% becomes 0.81). Handle "<1%" as 0.005.
- Do not include any other text or explanations outside of the final JSON object.`

// WholePrompt builds the prompt for a single call over the full content.
func WholePrompt(content string) string {
	var b strings.Builder
	b.WriteString(Instructions)
	b.WriteString("\n\nPlease parse the following Polymarket markdown content:\n\n")
	b.WriteString(content)
	return b.String()
}

// ChunkPrompt builds the prompt for chunk i (zero based) of n.
func ChunkPrompt(chunk string, i, n int) string {
	var b strings.Builder
	b.WriteString(Instructions)
	fmt.Fprintf(&b, "\n\nThis is chunk %d of %d.", i+1, n)
	b.WriteString(" Only extract the markets that appear in this chunk.\n\n")
	b.WriteString(chunk)
	return b.String()
}
