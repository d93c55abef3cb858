package bot

import (
	"strings"

	"WaPulse/internal/model"
)

// MatchTrigger 判断入站正文是否命中单个触发词
func MatchTrigger(body, trigger string, mode model.MatchMode, caseSensitive bool) bool {
	if !caseSensitive {
		body = strings.ToLower(body)
		trigger = strings.ToLower(trigger)
	}

	switch mode {
	case model.MatchModeExact:
		return body == trigger
	case model.MatchModeIncludes:
		return containsWordSequence(strings.Fields(body), strings.Fields(trigger))
	case model.MatchModeAnywhere:
		return containsAllWords(strings.Fields(body), strings.Fields(trigger))
	default:
		return false
	}
}

// matchAny 空触发词列表无条件命中
func matchAny(body string, triggers []string, mode model.MatchMode, caseSensitive bool) bool {
	if len(triggers) == 0 {
		return true
	}
	for _, t := range triggers {
		if MatchTrigger(body, t, mode, caseSensitive) {
			return true
		}
	}
	return false
}

// containsWordSequence 判断 want 是否是 words 的连续子序列
func containsWordSequence(words, want []string) bool {
	if len(want) == 0 {
		return false
	}
	for i := 0; i+len(want) <= len(words); i++ {
		ok := true
		for j := range want {
			if !wordMatches(words[i+j], want[j]) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// containsAllWords 判断 want 的每个词是否都出现在 words 中，顺序不限
func containsAllWords(words, want []string) bool {
	if len(want) == 0 {
		return false
	}
	for _, w := range want {
		found := false
		for _, word := range words {
			if wordMatches(word, w) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// wordMatches 忽略正文词尾附着的标点，"there!" 仍算命中 "there"
func wordMatches(word, want string) bool {
	return strings.Trim(word, ".,!?;:\"'()") == want || word == want
}
