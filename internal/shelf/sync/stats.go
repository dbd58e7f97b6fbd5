package sync

import (
	"fmt"

	"github.com/mschirtzinger/inkshelf/internal/shelf/remote"
	"github.com/mschirtzinger/inkshelf/internal/shelf/schema"
)

// StatisticsMarker is the heading that opens the statistics section of a
// Serial page. Everything after it on the page belongs to the section.
const StatisticsMarker = "Serial statistics"

type serialTotals struct {
	episodes          int
	chars             int
	charsNoSpaces     int
	views, likes, cmt int
}

func (t *serialTotals) add(ep *schema.Episode) {
	chars, noSpaces := schema.CountChars(ep.Body)
	t.episodes++
	t.chars += chars
	t.charsNoSpaces += noSpaces
	if ep.Stats != nil {
		t.views += ep.Stats.Views
		t.likes += ep.Stats.Likes
		t.cmt += ep.Stats.Comments
	}
}

// statisticsBlocks renders the statistics section for a work's serial.
func statisticsBlocks(snap *snapshot, workID string) []remote.Block {
	var total serialTotals
	var lines []string

	chapters := append([]*schema.Chapter(nil), snap.chapters[workID]...)
	sortByOrder(chapters, func(c *schema.Chapter) int { return c.Order })
	for _, ch := range chapters {
		var t serialTotals
		for _, ep := range snap.episodes[episodeKey(workID, ch.ID)] {
			t.add(ep)
			total.add(ep)
		}
		lines = append(lines, fmt.Sprintf("%s: %d episodes, %d characters", ch.PageTitle(), t.episodes, t.chars))
	}

	if loose := snap.episodes[episodeKey(workID, "")]; len(loose) > 0 {
		var t serialTotals
		for _, ep := range loose {
			t.add(ep)
			total.add(ep)
		}
		lines = append(lines, fmt.Sprintf("Unassigned: %d episodes, %d characters", t.episodes, t.chars))
	}

	blocks := []remote.Block{
		remote.Heading(StatisticsMarker),
		remote.Paragraph(fmt.Sprintf("Episodes: %d", total.episodes)),
		remote.Paragraph(fmt.Sprintf("Characters: %d (%d without spaces)", total.chars, total.charsNoSpaces)),
		remote.Paragraph(fmt.Sprintf("Views: %d, Likes: %d, Comments: %d", total.views, total.likes, total.cmt)),
	}
	for _, line := range lines {
		blocks = append(blocks, remote.Paragraph(line))
	}
	return blocks
}
