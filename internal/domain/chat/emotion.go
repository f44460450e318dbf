package chat

import "strings"

// Emotion tags a finished assistant reply for the avatar layer.
type Emotion string

const (
	EmotionHappy     Emotion = "happy"
	EmotionSad       Emotion = "sad"
	EmotionAngry     Emotion = "angry"
	EmotionSurprised Emotion = "surprised"
	EmotionThinking  Emotion = "thinking"
	EmotionNeutral   Emotion = "neutral"
)

// emotionRules are checked in order; the first emotion with any matching
// keyword or emoji wins, so the order is a priority ranking.
var emotionRules = []struct {
	emotion  Emotion
	keywords []string
}{
	{EmotionHappy, []string{
		"happy", "glad", "great", "wonderful", "excellent", "love", "delight", "awesome",
		"😊", "😄", "😀", "🎉", "❤",
	}},
	{EmotionSad, []string{
		"sad", "sorry", "unfortunately", "regret", "miss you", "lonely",
		"😢", "😞", "😔",
	}},
	{EmotionAngry, []string{
		"angry", "furious", "annoyed", "frustrat", "outrage",
		"😠", "😡",
	}},
	{EmotionSurprised, []string{
		"wow", "surprised", "amazing", "incredible", "unexpected", "unbelievable",
		"😲", "😮", "🤯",
	}},
	{EmotionThinking, []string{
		"hmm", "let me think", "consider", "perhaps", "maybe", "wonder",
		"🤔",
	}},
}

// DetectEmotion classifies text into one of the fixed emotion tags.
// Case-insensitive keyword lookup, first match wins in priority order,
// neutral when nothing matches. Deterministic and side-effect free; it is
// applied to fully assembled replies, never to partial chunks.
func DetectEmotion(text string) Emotion {
	lower := strings.ToLower(text)
	for _, rule := range emotionRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.emotion
			}
		}
	}
	return EmotionNeutral
}
