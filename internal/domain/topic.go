// Package domain holds the core exam types shared across packages.
package domain

import (
	"fmt"
	"strings"
)

// Topic is one of the fixed speaking-exam themes.
type Topic string

const (
	TopicEducation   Topic = "Education"
	TopicTechnology  Topic = "Technology"
	TopicFamily      Topic = "Family"
	TopicEnvironment Topic = "Environment"
	TopicTravel      Topic = "Travel"
	TopicHealth      Topic = "Health"
	TopicWork        Topic = "Work"
	TopicCulture     Topic = "Culture"
	TopicFood        Topic = "Food"
	TopicSports      Topic = "Sports"
)

// Topics lists every selectable topic in presentation order.
var Topics = []Topic{
	TopicEducation,
	TopicTechnology,
	TopicFamily,
	TopicEnvironment,
	TopicTravel,
	TopicHealth,
	TopicWork,
	TopicCulture,
	TopicFood,
	TopicSports,
}

// ParseTopic resolves s case-insensitively to a known Topic.
func ParseTopic(s string) (Topic, error) {
	s = strings.TrimSpace(s)
	for _, t := range Topics {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown topic %q", s)
}

// String implements fmt.Stringer.
func (t Topic) String() string { return string(t) }
