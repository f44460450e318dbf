package chat

import "testing"

func TestDetectEmotion(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		want Emotion
	}{
		{"I'm so happy to see you!", EmotionHappy},
		{"That's GREAT news", EmotionHappy},
		{"🎉 congratulations", EmotionHappy},
		{"I'm sorry, that didn't work out", EmotionSad},
		{"Unfortunately the shop was closed 😢", EmotionSad},
		{"This is so frustrating!", EmotionAngry},
		{"Wow, I did not see that coming", EmotionSurprised},
		{"Hmm, let me think about that", EmotionThinking},
		{"Perhaps we should try another approach", EmotionThinking},
		{"The meeting is at three o'clock.", EmotionNeutral},
		{"", EmotionNeutral},
	}
	for _, tc := range cases {
		if got := DetectEmotion(tc.text); got != tc.want {
			t.Errorf("DetectEmotion(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestDetectEmotionPriorityOrder(t *testing.T) {
	t.Parallel()

	// Text matching several rules resolves to the highest-priority one.
	if got := DetectEmotion("I'm happy but also a little sad"); got != EmotionHappy {
		t.Errorf("mixed text = %q, want happy to win", got)
	}
	if got := DetectEmotion("sad and angry at once"); got != EmotionSad {
		t.Errorf("mixed text = %q, want sad to win over angry", got)
	}
}
