package missions

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/missions-backend/pkg/enums"
	"github.com/angelmondragon/missions-backend/pkg/openai"
)

const systemPrompt = "You design missions for couples. Missions are short and thoughtful. " +
	"They must be safe and respectful and should bring the partners closer."

// buildPrompt returns the chat messages for one mission. Avoided missions are
// listed so the model steers away from repeats.
func buildPrompt(category enums.MissionCategory, avoid []string) []openai.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Write ONE mission for a couple.\nCategory: %s\n\n", category)
	b.WriteString("Rules:\n")
	b.WriteString("- 1 to 3 sentences\n")
	b.WriteString("- doable today\n")
	b.WriteString("- no therapy language and no cliches\n")
	b.WriteString("- warm, human tone\n")

	if len(avoid) > 0 {
		fmt.Fprintf(&b, "\nPrevious missions in this category (%d):\n", len(avoid))
		for i, m := range avoid {
			fmt.Fprintf(&b, "%d. %s\n", i+1, m)
		}
		b.WriteString("\nIMPORTANT: the new mission must DIFFER from the ones above. Avoid similar ideas and themes.")
	}

	return []openai.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: b.String()},
	}
}
