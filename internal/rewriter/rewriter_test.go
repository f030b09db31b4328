package rewriter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteConvertsWrittenOutArticleNumber(t *testing.T) {
	r := New()

	out := r.Rewrite("ماده ده قانون چلمنگان چی می‌گه؟", "fa")
	assert.Contains(t, out, "ماده 10")
}

func TestRewriteCompoundNumeral(t *testing.T) {
	r := New()

	out := r.Rewrite("تبصره بیست و یک قانون کار", "fa")
	assert.Contains(t, out, "تبصره 21")
}

func TestRewritePersianDigits(t *testing.T) {
	r := New()

	out := r.Rewrite("ماده ۱۲۳ قانون مدنی", "fa")
	assert.Contains(t, out, "ماده 123")
}

func TestRewriteExpandsAbbreviations(t *testing.T) {
	r := New()

	tests := []struct {
		in   string
		want string
	}{
		{"ماده 10 ق.م", "قانون مدنی"},
		{"ماده 5 ق.م.ا", "قانون مجازات اسلامی"},
		{"طبق ق.ت چه می‌شود؟", "قانون تجارت"},
	}

	for _, tt := range tests {
		out := r.Rewrite(tt.in, "fa")
		assert.Contains(t, out, tt.want, "input: %s", tt.in)
	}
}

func TestRewriteFixesKnownTypos(t *testing.T) {
	r := New()

	out := r.Rewrite("قائون مدنی چیست؟", "fa")
	assert.Contains(t, out, "قانون")
	assert.NotContains(t, out, "قائون")
}

func TestRewriteEnglishNumerals(t *testing.T) {
	r := New()

	out := r.Rewrite("what does article ten say?", "en")
	assert.Contains(t, out, "article 10")
}

func TestRewriteLeavesProseNumeralsAlone(t *testing.T) {
	r := New()

	// "ده روز" is prose, not an article reference.
	out := r.Rewrite("ظرف ده روز اعتراض کنید", "fa")
	assert.Contains(t, out, "ده روز")
}

func TestRewriteIdempotent(t *testing.T) {
	r := New()

	inputs := []string{
		"ماده ده قانون چلمنگان چی می‌گه؟",
		"ماده ۱۲ ق.م.ا و تبصره دو آن",
		"شرایط فسخ قرارداد اجاره",
		"what does article twelve say?",
		"سلام",
	}

	for _, in := range inputs {
		once := r.Rewrite(in, "fa")
		twice := r.Rewrite(once, "fa")
		assert.Equal(t, once, twice, "rewrite not idempotent for %q", in)
	}
}

func TestRewriteNeverDropsContent(t *testing.T) {
	r := New()

	in := "شرایط فسخ قرارداد اجاره"
	out := r.Rewrite(in, "fa")

	// Every word of the input survives in the output.
	for _, word := range []string{"شرایط", "فسخ", "قرارداد", "اجاره"} {
		assert.Contains(t, out, word)
	}
}

func TestRewriteAppendsSynonyms(t *testing.T) {
	r := New()

	out := r.Rewrite("شرایط فسخ قرارداد", "fa")
	assert.Contains(t, out, "انحلال قرارداد")
}

func TestRewriteCollapsesWhitespace(t *testing.T) {
	r := New()

	out := r.Rewrite("  ماده   10   قانون  ", "fa")
	assert.Equal(t, "ماده 10 قانون", out)
}

func TestRewriteEmptyInput(t *testing.T) {
	r := New()
	assert.Equal(t, "", r.Rewrite("", "fa"))
	assert.Equal(t, "   ", r.Rewrite("   ", "fa"))
}
