package lipsync

import "testing"

func TestTextToPhonemes_Vowels(t *testing.T) {
	t.Parallel()

	got := TextToPhonemes("aeiou")
	want := []Phoneme{PhonemeA, PhonemeE, PhonemeI, PhonemeO, PhonemeU}
	if len(got) != len(want) {
		t.Fatalf("expected %d phonemes, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("phoneme %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestTextToPhonemes_PunctuationAndSpaceClose(t *testing.T) {
	t.Parallel()

	for _, p := range TextToPhonemes(" .,!? ") {
		if p != PhonemeClosed {
			t.Fatalf("expected closed mouth for punctuation, got %s", p)
		}
	}
}

func TestTextToPhonemes_NasalConsonants(t *testing.T) {
	t.Parallel()

	got := TextToPhonemes("mn")
	for i, p := range got {
		if p != PhonemeN {
			t.Errorf("phoneme %d: expected N, got %s", i, p)
		}
	}
}

func TestTextToPhonemes_Deterministic(t *testing.T) {
	t.Parallel()

	a := TextToPhonemes("hello world")
	b := TextToPhonemes("hello world")
	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d != %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("phoneme %d differs between runs", i)
		}
	}
}

func TestStrings(t *testing.T) {
	t.Parallel()

	out := Strings([]Phoneme{PhonemeA, PhonemeClosed})
	if out[0] != "A" || out[1] != "closed" {
		t.Fatalf("unexpected rendering: %v", out)
	}
}
