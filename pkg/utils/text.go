// Package utils provides shared utilities for text, token counting, math, and logging.
package utils

import "regexp"

// pretokenRe splits text the way BPE pre-tokenizers do: letter runs, digit runs, and single
// punctuation/symbol characters each count as one token.
var pretokenRe = regexp.MustCompile(`\p{L}+|\p{N}+|[^\s\p{L}\p{N}]`)

// Pretokenize returns the pre-tokens of text in order.
func Pretokenize(text string) []string {
	return pretokenRe.FindAllString(text, -1)
}

// CountTokens returns a deterministic estimate of the number of model tokens in text.
// It undercounts real BPE tokens; backends with a tokenizer count exactly.
func CountTokens(text string) int {
	return len(pretokenRe.FindAllStringIndex(text, -1))
}
