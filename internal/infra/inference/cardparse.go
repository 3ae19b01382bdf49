package inference

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/surgitrain/segmentation-service/internal/domain/entity"
)

// Cards read "PARTICIPANT 12" or "EXPERT 3", but OCR output is noisy. A word
// within Levenshtein distance 3 of either keyword, followed somewhere by a
// number, counts as a sighting.
const maxKeywordDistance = 3

var wordPattern = regexp.MustCompile(`[A-Za-z]+|[0-9]+`)

// ParseCardText extracts a card identity from raw OCR text. ok is false when
// the text contains no recognisable card.
func ParseCardText(text string) (role entity.ParticipantRole, number int, ok bool) {
	words := wordPattern.FindAllString(text, -1)
	for i, word := range words {
		if len(word) < 5 {
			continue
		}
		lower := strings.ToLower(word)
		dp := levenshtein(lower, "participant")
		de := levenshtein(lower, "expert")
		if dp > maxKeywordDistance && de > maxKeywordDistance {
			continue
		}
		for j := i + 1; j < len(words); j++ {
			n, err := strconv.Atoi(words[j])
			if err != nil {
				continue
			}
			if dp <= de {
				return entity.RoleParticipant, n, true
			}
			return entity.RoleExpert, n, true
		}
	}
	return "", 0, false
}

// ParticipantID renders the short id used on segments, "P12" or "E3".
func ParticipantID(role entity.ParticipantRole, number int) string {
	prefix := "P"
	if role == entity.RoleExpert {
		prefix = "E"
	}
	return prefix + strconv.Itoa(number)
}

func levenshtein(s1, s2 string) int {
	if len(s1) < len(s2) {
		s1, s2 = s2, s1
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 0; i < len(s1); i++ {
		curr[0] = i + 1
		for j := 0; j < len(s2); j++ {
			cost := 1
			if s1[i] == s2[j] {
				cost = 0
			}
			curr[j+1] = min3(prev[j+1]+1, curr[j]+1, prev[j]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
