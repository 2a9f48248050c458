package transcript

import (
	"fmt"
	"sort"
	"strings"
)

// Tag classifies one transcript segment.
type Tag string

const (
	Neutral    Tag = "neutral"
	ActionItem Tag = "action_item"
	Decision   Tag = "decision"
	Question   Tag = "question"
	Issue      Tag = "issue"
)

// tagOrder breaks score ties.
var tagOrder = []Tag{ActionItem, Decision, Issue, Question}

// Highlight is a tagged segment.
type Highlight struct {
	Tag   Tag    `json:"tag"`
	Text  string `json:"text"`
	Score int    `json:"score"`
}

// Digest is the heuristic reading of a transcript.
type Digest struct {
	Segments   int         `json:"segments"`
	Words      int         `json:"words"`
	Counts     map[Tag]int `json:"counts"`
	Highlights []Highlight `json:"highlights"`
}

var keywordBuckets = map[Tag][]string{
	ActionItem: {
		"action item", "todo", "to do", "follow up", "follow-up", "i will", "i'll", "we will", "we'll",
		"please send", "can you", "assign", "by friday", "by monday", "next week", "deadline", "take care of",
		"待办", "跟进", "负责", "截止",
	},
	Decision: {
		"we decided", "decided", "decision", "agreed", "agree on", "let's go with", "go with", "approved",
		"final answer", "settled", "sign off", "signed off", "决定", "同意", "通过",
	},
	Question: {
		"what", "why", "how", "when", "where", "who", "could we", "should we", "does anyone", "any questions",
		"吗", "为什么", "怎么",
	},
	Issue: {
		"blocker", "blocked", "issue", "problem", "bug", "broken", "fails", "failing", "outage", "risk",
		"concern", "delay", "incident", "问题", "风险", "故障", "阻塞",
	},
}

var punctuationBoost = map[Tag]int{
	Question: 3,
}

const minHighlightScore = 3

// Analyze tags every segment and keeps at most limit highlights, strongest
// first. A non-positive limit keeps all of them.
func Analyze(segments []string, limit int) Digest {
	digest := Digest{Counts: make(map[Tag]int)}

	for _, segment := range segments {
		text := strings.TrimSpace(segment)
		if text == "" {
			continue
		}
		digest.Segments++
		digest.Words += len(strings.Fields(text))

		h := Classify(text)
		if h.Tag == Neutral || h.Score < minHighlightScore {
			continue
		}
		digest.Counts[h.Tag]++
		digest.Highlights = append(digest.Highlights, h)
	}

	sort.SliceStable(digest.Highlights, func(i, j int) bool {
		return digest.Highlights[i].Score > digest.Highlights[j].Score
	})
	if limit > 0 && len(digest.Highlights) > limit {
		digest.Highlights = digest.Highlights[:limit]
	}
	return digest
}

// Classify scores one segment against every bucket.
func Classify(text string) Highlight {
	normalized := strings.TrimSpace(strings.ToLower(text))
	if normalized == "" {
		return Highlight{Tag: Neutral}
	}

	scores := make(map[Tag]int)
	for tag, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				scores[tag] += 3
			}
		}
	}

	if marks := strings.Count(text, "?") + strings.Count(text, "？"); marks > 0 {
		scores[Question] += marks * punctuationBoost[Question]
	}

	best := Neutral
	bestScore := 0
	for _, tag := range tagOrder {
		if scores[tag] > bestScore {
			best = tag
			bestScore = scores[tag]
		}
	}

	return Highlight{Tag: best, Text: strings.TrimSpace(text), Score: bestScore}
}

// Summary renders the digest as a short paragraph.
func (d Digest) Summary() string {
	if d.Segments == 0 {
		return "No transcript was captured."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d transcript segments, %d words.", d.Segments, d.Words)
	fmt.Fprintf(&b, " Action items: %d, decisions: %d, issues: %d, questions: %d.",
		d.Counts[ActionItem], d.Counts[Decision], d.Counts[Issue], d.Counts[Question])
	for _, h := range d.Highlights {
		fmt.Fprintf(&b, "\n- [%s] %s", h.Tag, h.Text)
	}
	return b.String()
}
