package msgs

import (
	"fmt"
	"strings"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
)

// oocLayout formats the real creation time of an entry.
const oocLayout = "01/02/06 15:04:05"

// formatEntry renders the common body of a journal or messenger entry.
func formatEntry(m *gamedb.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n", m.HeaderValue(gamedb.HeaderDate))
	for _, t := range m.Tags {
		if strings.EqualFold(t.Category, gamedb.TagEventCategory) {
			fmt.Fprintf(&b, "Event: %s\n", t.Key)
			break
		}
	}
	fmt.Fprintf(&b, "OOC Date: %s\n\n", m.Created.Format(oocLayout))
	b.WriteString(m.Body)
	return b.String()
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// summarize cuts text to at most n runes for index listings.
func summarize(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n-3]) + "..."
}
