package exam

import (
	"fmt"
	"strings"

	"github.com/ashureev/ielts-coach/internal/domain"
)

// Prompt returns the scripted examiner instruction that opens phase for topic.
func Prompt(phase domain.Phase, topic domain.Topic) string {
	switch phase {
	case domain.Part1:
		return fmt.Sprintf("You are an IELTS examiner for Part 1 on topic: %s. Ask simple, personal questions.", topic)
	case domain.Part2:
		return fmt.Sprintf("Part 2: Describe a time when %s was important in your life.", strings.ToLower(string(topic)))
	case domain.Part3:
		return fmt.Sprintf("Part 3: Discuss broader analytical questions about %s in society.", topic)
	default:
		return ""
	}
}
