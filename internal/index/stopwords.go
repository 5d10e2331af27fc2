package index

var defaultStopwords = DefaultStopwords()

// DefaultStopwords 返回常用英文停用词集合
func DefaultStopwords() map[string]struct{} {
	ws := []string{
		"a", "an", "the", "and", "or", "but",
		"to", "in", "of", "on", "for", "with", "as", "at", "by", "from",
		"is", "are", "was", "were", "be", "been", "being",
		"this", "that", "these", "those", "it", "its", "itself",
		"i", "me", "my", "we", "our", "ours",
		"you", "your", "yours", "he", "him", "his", "she", "her", "hers",
		"they", "them", "their", "theirs",
		"do", "does", "did", "have", "has", "had",
		"not", "no", "nor", "only", "very", "too",
		"can", "could", "should", "would", "may", "might", "must", "will",
		"if", "then", "else", "than", "so", "because", "while", "when", "where",
		"about", "into", "out", "up", "down", "over", "under",
		"again", "once", "here", "there",
	}
	m := make(map[string]struct{}, len(ws))
	for _, w := range ws {
		m[w] = struct{}{}
	}
	return m
}
