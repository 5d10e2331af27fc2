package index

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// foldDiacritics 去掉变音符号: "Café" -> "Cafe"
func foldDiacritics(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return folded
}

// Analyze 将文本切分为索引词项
// 处理顺序: 去变音符号 -> 小写 -> 切词 -> 去停用词 -> 词干化
// stop为nil时使用DefaultStopwords
func Analyze(text string, stop map[string]struct{}) []string {
	if stop == nil {
		stop = defaultStopwords
	}

	tokens := tokenPattern.FindAllString(strings.ToLower(foldDiacritics(text)), -1)
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, skip := stop[tok]; skip {
			continue
		}
		if s := english.Stem(tok, true); s != "" {
			terms = append(terms, s)
		}
	}
	return terms
}

// termFrequencies 统计词频
func termFrequencies(terms []string) map[string]int {
	freq := make(map[string]int, len(terms))
	for _, t := range terms {
		freq[t]++
	}
	return freq
}
