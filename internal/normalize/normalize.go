// Package normalize turns raw transcript text into the lowercase,
// punctuation-free form expected by speech-training corpora such as LJSpeech.
//
// Normalization is pure and deterministic: the same input and [Policy] always
// produce the same output, and applying Normalize to its own output is a
// no-op. Two paths exist, chosen per input string:
//
//   - Latin path: lowercases, spells out numbers, strips punctuation.
//   - Non-Latin path: preserves letter case and script, maps Arabic-Indic
//     digits to Arabic number words, strips sentence punctuation.
//
// The non-Latin path is taken only when [Policy.PreserveNonLatin] is set and
// the input contains at least one rune from a non-Latin script block (Arabic,
// Hangul, CJK, Japanese kana).
package normalize

import (
	"regexp"
	"strings"
)

// Policy controls script-sensitive normalization behaviour.
type Policy struct {
	// PreserveNonLatin keeps non-Latin scripts intact instead of forcing the
	// Latin pipeline (which would strip every non-ASCII letter).
	PreserveNonLatin bool
}

// DefaultPolicy preserves non-Latin scripts.
var DefaultPolicy = Policy{PreserveNonLatin: true}

// nonLatinRE matches a single rune from the script blocks that switch
// normalization to the non-Latin path: Arabic (incl. supplement and
// extended-A), Hangul Jamo and syllables, kana, and the CJK ideograph ranges.
var nonLatinRE = regexp.MustCompile(`[\x{0600}-\x{06FF}\x{0750}-\x{077F}\x{08A0}-\x{08FF}\x{1100}-\x{11FF}\x{3040}-\x{309F}\x{30A0}-\x{30FF}\x{3400}-\x{4DBF}\x{4E00}-\x{9FFF}\x{AC00}-\x{D7AF}]`)

var (
	sentencePunctRE = regexp.MustCompile(`[!?.,:;'"،؛]`)
	digitRunRE      = regexp.MustCompile(`[0-9]+`)
	latinStripRE    = regexp.MustCompile(`[^\w\s']|_`)
	whitespaceRE    = regexp.MustCompile(`\s+`)
)

// arabicDigitWords maps the Arabic-Indic digits U+0660..U+0669 to the
// corresponding Arabic number words.
var arabicDigitWords = map[rune]string{
	'٠': "صفر",
	'١': "واحد",
	'٢': "اثنان",
	'٣': "ثلاثة",
	'٤': "أربعة",
	'٥': "خمسة",
	'٦': "ستة",
	'٧': "سبعة",
	'٨': "ثمانية",
	'٩': "تسعة",
}

// numberWord is one whole-number spelling applied at word boundaries.
type numberWord struct {
	re   *regexp.Regexp
	word string
}

// numberWords holds the whole-word replacements for the Latin path,
// most specific first so "1000" is never consumed as "100"+"0".
var numberWords = buildNumberWords()

func buildNumberWords() []numberWord {
	pairs := []struct {
		digits string
		word   string
	}{
		{"1000", "one thousand"},
		{"100", "one hundred"},
		{"90", "ninety"},
		{"80", "eighty"},
		{"70", "seventy"},
		{"60", "sixty"},
		{"50", "fifty"},
		{"40", "forty"},
		{"30", "thirty"},
		{"20", "twenty"},
		{"19", "nineteen"},
		{"18", "eighteen"},
		{"17", "seventeen"},
		{"16", "sixteen"},
		{"15", "fifteen"},
		{"14", "fourteen"},
		{"13", "thirteen"},
		{"12", "twelve"},
		{"11", "eleven"},
		{"10", "ten"},
		{"9", "nine"},
		{"8", "eight"},
		{"7", "seven"},
		{"6", "six"},
		{"5", "five"},
		{"4", "four"},
		{"3", "three"},
		{"2", "two"},
		{"1", "one"},
		{"0", "zero"},
	}
	words := make([]numberWord, 0, len(pairs))
	for _, p := range pairs {
		words = append(words, numberWord{
			re:   regexp.MustCompile(`\b` + p.digits + `\b`),
			word: p.word,
		})
	}
	return words
}

// digitWords spells a single ASCII digit for digit-by-digit expansion.
var digitWords = [10]string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}

// Normalize returns the training-ready form of text under the given policy.
// It is idempotent: Normalize(Normalize(t, p), p) == Normalize(t, p).
func Normalize(text string, policy Policy) string {
	if text == "" {
		return ""
	}
	if policy.PreserveNonLatin && nonLatinRE.MatchString(text) {
		return normalizeNonLatin(text)
	}
	return normalizeLatin(text)
}

// normalizeNonLatin keeps the script intact and only removes sentence
// punctuation and rewrites digits.
func normalizeNonLatin(text string) string {
	out := sentencePunctRE.ReplaceAllString(text, " ")

	var b strings.Builder
	b.Grow(len(out))
	for _, r := range out {
		if word, ok := arabicDigitWords[r]; ok {
			b.WriteString(" " + word + " ")
			continue
		}
		b.WriteRune(r)
	}
	out = b.String()

	// ASCII digit runs inside non-Latin text are split into standalone
	// digits rather than spelled out; spelling them would require knowing
	// the surrounding language.
	out = digitRunRE.ReplaceAllStringFunc(out, func(run string) string {
		digits := strings.Split(run, "")
		return strings.Join(digits, " ")
	})

	return collapse(out)
}

// normalizeLatin applies the full lowercase pipeline.
func normalizeLatin(text string) string {
	out := strings.ToLower(text)

	for _, nw := range numberWords {
		out = nw.re.ReplaceAllString(out, nw.word)
	}

	// Anything not covered by the whole-word table is spelled digit by digit.
	out = digitRunRE.ReplaceAllStringFunc(out, func(run string) string {
		words := make([]string, 0, len(run))
		for _, r := range run {
			words = append(words, digitWords[r-'0'])
		}
		return strings.Join(words, " ")
	})

	out = latinStripRE.ReplaceAllString(out, " ")
	return collapse(out)
}

// collapse squeezes whitespace runs to single spaces and trims the ends.
func collapse(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}
