// Package lipsync maps text to mouth-shape phoneme sequences for avatar
// animation. It is a stateless pure function applied to each streamed text
// chunk; the chat core never calls it directly.
package lipsync

import "unicode"

// Phoneme is one of the AEIOU mouth shapes plus nasal and closed positions.
type Phoneme string

const (
	PhonemeA      Phoneme = "A"      // mouth wide open
	PhonemeE      Phoneme = "E"      // half open
	PhonemeI      Phoneme = "I"      // spread
	PhonemeO      Phoneme = "O"      // round
	PhonemeU      Phoneme = "U"      // pursed
	PhonemeN      Phoneme = "N"      // nasal, nearly closed
	PhonemeClosed Phoneme = "closed" // punctuation, pauses
)

// vowelCycle gives consonants a deterministic mouth shape so the animation
// looks lively without a per-language grapheme-to-phoneme model.
var vowelCycle = []Phoneme{PhonemeA, PhonemeE, PhonemeI, PhonemeO, PhonemeU}

// TextToPhonemes converts a text fragment into one phoneme per rune.
func TextToPhonemes(text string) []Phoneme {
	phonemes := make([]Phoneme, 0, len(text))
	consonants := 0
	for _, r := range text {
		p := runeToPhoneme(r, consonants)
		if p != PhonemeClosed && !isVowelRune(r) {
			consonants++
		}
		phonemes = append(phonemes, p)
	}
	return phonemes
}

func runeToPhoneme(r rune, consonantIndex int) Phoneme {
	if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
		return PhonemeClosed
	}

	switch unicode.ToLower(r) {
	case 'a':
		return PhonemeA
	case 'e':
		return PhonemeE
	case 'i', 'y':
		return PhonemeI
	case 'o':
		return PhonemeO
	case 'u', 'w':
		return PhonemeU
	case 'm', 'n':
		return PhonemeN
	}

	if unicode.IsDigit(r) {
		return PhonemeClosed
	}

	// Consonants and non-Latin letters rotate through the vowel shapes.
	return vowelCycle[consonantIndex%len(vowelCycle)]
}

func isVowelRune(r rune) bool {
	switch unicode.ToLower(r) {
	case 'a', 'e', 'i', 'o', 'u', 'y', 'w', 'm', 'n':
		return true
	}
	return false
}

// Strings renders a phoneme sequence as plain strings for JSON payloads.
func Strings(phonemes []Phoneme) []string {
	out := make([]string, len(phonemes))
	for i, p := range phonemes {
		out[i] = string(p)
	}
	return out
}
