// Package rewriter normalizes utterances before embedding to raise
// retrieval recall without changing meaning.
//
// Rewriting is deterministic and idempotent: running the rewriter on
// its own output yields the same string. It never shortens the
// informational content of the input.
package rewriter

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Rewriter normalizes query text for retrieval.
type Rewriter struct {
	abbreviations []replacement
	synonyms      map[string]string
	typos         map[string]string
}

type replacement struct {
	from string
	to   string
}

// New creates a Rewriter with the built-in legal-domain tables.
func New() *Rewriter {
	return &Rewriter{
		// Longest abbreviations first so "ق.م.ا" wins over "ق.م".
		abbreviations: []replacement{
			{"ق.م.ا", "قانون مجازات اسلامی"},
			{"آ.د.م", "آیین دادرسی مدنی"},
			{"آ.د.ک", "آیین دادرسی کیفری"},
			{"ق.ا", "قانون اساسی"},
			{"ق.م", "قانون مدنی"},
			{"ق.ت", "قانون تجارت"},
		},
		synonyms: map[string]string{
			"فسخ":    "انحلال قرارداد",
			"مهریه":  "صداق",
			"وکالت":  "نمایندگی",
			"اجاره":  "کرایه",
			"شکایت":  "دادخواست",
		},
		typos: map[string]string{
			"قائون": "قانون",
			"قانن":  "قانون",
			"مادده": "ماده",
		},
	}
}

// persianDigits maps Persian (U+06F0) and Arabic-Indic (U+0660) digits
// onto ASCII.
var persianDigits = strings.NewReplacer(
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4",
	"۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
)

// numeralUnits are written-out Persian numbers 1..19 plus round values.
var numeralUnits = map[string]int{
	"یک": 1, "دو": 2, "سه": 3, "چهار": 4, "پنج": 5,
	"شش": 6, "هفت": 7, "هشت": 8, "نه": 9, "ده": 10,
	"یازده": 11, "دوازده": 12, "سیزده": 13, "چهارده": 14, "پانزده": 15,
	"شانزده": 16, "هفده": 17, "هجده": 18, "نوزده": 19,
	"صد": 100,
}

// numeralTens are written-out Persian tens 20..90.
var numeralTens = map[string]int{
	"بیست": 20, "سی": 30, "چهل": 40, "پنجاه": 50,
	"شصت": 60, "هفتاد": 70, "هشتاد": 80, "نود": 90,
}

// englishNumerals covers written-out English numbers commonly used in
// article references.
var englishNumerals = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "twenty": 20, "thirty": 30,
	"forty": 40, "fifty": 50, "hundred": 100,
}

// structural keywords after which a written-out numeral is a reference,
// not prose ("ماده ده" is article 10; "ده روز" stays untouched).
var faNumeralRef = regexp.MustCompile(`(ماده|تبصره|بند|اصل|فصل)\s+(\S+(?:\s+و\s+\S+)?)`)
var enNumeralRef = regexp.MustCompile(`(?i)(article|section|clause)\s+([a-z]+(?:-[a-z]+)?)`)

var whitespacePattern = regexp.MustCompile(`\s+`)

// Rewrite normalizes query text. The output never carries less
// information than the input; any step that does not apply leaves the
// text unchanged.
func (r *Rewriter) Rewrite(query, language string) string {
	if strings.TrimSpace(query) == "" {
		return query
	}

	out := persianDigits.Replace(query)
	out = r.fixTypos(out)
	out = r.expandAbbreviations(out)
	out = convertNumeralRefs(out, language)
	out = r.appendSynonyms(out)
	out = whitespacePattern.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// fixTypos replaces known misspellings token-wise.
func (r *Rewriter) fixTypos(text string) string {
	fields := strings.Fields(text)
	for i, f := range fields {
		if fixed, ok := r.typos[f]; ok {
			fields[i] = fixed
		}
	}
	return strings.Join(fields, " ")
}

// expandAbbreviations expands known legal abbreviations in place.
func (r *Rewriter) expandAbbreviations(text string) string {
	for _, a := range r.abbreviations {
		text = strings.ReplaceAll(text, a.from, a.to)
	}
	return text
}

// convertNumeralRefs converts written-out numerals to digits, but only
// after structural keywords where they are unambiguous references.
func convertNumeralRefs(text, language string) string {
	text = faNumeralRef.ReplaceAllStringFunc(text, func(match string) string {
		sub := faNumeralRef.FindStringSubmatch(match)
		keyword, numeral := sub[1], sub[2]
		if value, ok := parsePersianNumeral(numeral); ok {
			return keyword + " " + strconv.Itoa(value)
		}
		return match
	})

	if language != "fa" {
		text = enNumeralRef.ReplaceAllStringFunc(text, func(match string) string {
			sub := enNumeralRef.FindStringSubmatch(match)
			keyword, numeral := sub[1], strings.ToLower(sub[2])
			if value, ok := englishNumerals[numeral]; ok {
				return keyword + " " + strconv.Itoa(value)
			}
			return match
		})
	}

	return text
}

// parsePersianNumeral parses a written-out Persian number, including
// compounds like "بیست و یک" (21).
func parsePersianNumeral(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if v, ok := numeralUnits[s]; ok {
		return v, true
	}
	if v, ok := numeralTens[s]; ok {
		return v, true
	}

	parts := strings.Split(s, " و ")
	if len(parts) == 2 {
		tens, okTens := numeralTens[strings.TrimSpace(parts[0])]
		unit, okUnit := numeralUnits[strings.TrimSpace(parts[1])]
		if okTens && okUnit && unit < 10 {
			return tens + unit, true
		}
	}
	return 0, false
}

// appendSynonyms appends a domain synonym for each matched term, unless
// the synonym already appears in the text (preserving idempotence).
func (r *Rewriter) appendSynonyms(text string) string {
	var additions []string
	for term, synonym := range r.synonyms {
		if strings.Contains(text, term) && !strings.Contains(text, synonym) {
			additions = append(additions, synonym)
		}
	}
	if len(additions) == 0 {
		return text
	}
	// Deterministic order regardless of map iteration.
	sort.Strings(additions)
	return text + " (" + strings.Join(additions, "، ") + ")"
}
