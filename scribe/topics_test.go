// SPDX-License-Identifier: LGPL-3.0-or-later

package scribe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTopicsHashtagsAndGeneralFallback(t *testing.T) {
	topics := ExtractTopics("loving the new #GoLang release, #concurrency wins")
	assert.Contains(t, topics, "golang")
	assert.Contains(t, topics, "concurrency")
	assert.Contains(t, topics, generalTopic)
}

func TestExtractTopicsDedupesRepeatedHashtag(t *testing.T) {
	topics := ExtractTopics("#ember #Ember #EMBER is the best")
	count := 0
	for _, topic := range topics {
		if topic == "ember" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestExtractTopicsCapsAtTen(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 20; i++ {
		sb.WriteString("#tag")
		sb.WriteRune(rune('a' + i))
		sb.WriteString(" ")
	}
	topics := ExtractTopics(sb.String())
	assert.LessOrEqual(t, len(topics), maxExtractedTopics)
}

func TestExtractTopicsKeywordDerivedTag(t *testing.T) {
	topics := ExtractTopics("breaking: the championship final just ended")
	assert.Contains(t, topics, "news")
	assert.Contains(t, topics, "sports")
}

func TestExtractTopicsOmitsGeneralWhenCapReached(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < maxExtractedTopics; i++ {
		sb.WriteString("#tag")
		sb.WriteRune(rune('a' + i))
		sb.WriteString(" ")
	}
	topics := ExtractTopics(sb.String())
	assert.Len(t, topics, maxExtractedTopics)
	assert.NotContains(t, topics, generalTopic)
}
