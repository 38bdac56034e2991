// SPDX-License-Identifier: LGPL-3.0-or-later

package scribe

import (
	"regexp"
	"strings"
)

const (
	maxExtractedTopics = 10
	maxTopicLen        = 50
	generalTopic       = "general"
)

var hashtagPattern = regexp.MustCompile(`#[a-z0-9_]{1,50}`)

// keywordTags is a small fixed list of post-text keywords mapped to a
// derived topic tag, used to broaden multicast reach for posts that
// don't carry an explicit hashtag (spec.md §4.5: "optionally add up to
// 5 keyword-derived tags from a fixed list").
var keywordTags = []struct {
	keyword string
	tag     string
}{
	{"breaking", "news"},
	{"election", "politics"},
	{"earthquake", "disaster"},
	{"championship", "sports"},
	{"concert", "music"},
}

const maxKeywordTags = 5

// ExtractTopics derives the Scribe topics a post should multicast to
// from its text: explicit #hashtags, up to maxKeywordTags keyword-derived
// tags from a fixed list, and #general as a fallback if the cap allows
// (spec.md §4.5).
func ExtractTopics(text string) []string {
	lower := strings.ToLower(text)

	seen := make(map[string]bool)
	var out []string

	for _, m := range hashtagPattern.FindAllString(lower, -1) {
		topic := strings.TrimPrefix(m, "#")
		if len(topic) > maxTopicLen {
			topic = topic[:maxTopicLen]
		}
		if seen[topic] {
			continue
		}
		seen[topic] = true
		out = append(out, topic)
		if len(out) >= maxExtractedTopics {
			return out
		}
	}

	keywordsAdded := 0
	for _, kt := range keywordTags {
		if keywordsAdded >= maxKeywordTags || len(out) >= maxExtractedTopics {
			break
		}
		if seen[kt.tag] || !strings.Contains(lower, kt.keyword) {
			continue
		}
		seen[kt.tag] = true
		out = append(out, kt.tag)
		keywordsAdded++
	}

	if len(out) < maxExtractedTopics && !seen[generalTopic] {
		out = append(out, generalTopic)
	}

	return out
}
