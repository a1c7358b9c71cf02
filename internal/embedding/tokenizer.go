package embedding

import (
	"hash/fnv"
	"strings"

	"github.com/hyperjump/kotae/pkg/utils"
)

// BERT special token IDs.
const (
	clsTokenID   = 101
	sepTokenID   = 102
	vocabBuckets = 30000
)

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// HashTokenizer maps lower-cased pre-tokens to hashed vocabulary buckets. It has no
// vocabulary file, so the IDs do not match a trained WordPiece vocabulary; models
// exported with it as front-end must be fine-tuned on the same bucketing.
type HashTokenizer struct{}

// Tokenize produces [CLS] tokens... [SEP] padded with zeros to maxTokens.
func (t *HashTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 2 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = clsTokenID
	attentionMask[0] = 1
	pos := 1
	for _, tok := range utils.Pretokenize(strings.ToLower(text)) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = bucket(tok)
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = sepTokenID
	attentionMask[pos] = 1
	return inputIDs, attentionMask, tokenTypeIDs
}

// bucket returns a vocabulary ID above the special-token range.
func bucket(tok string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tok))
	return int64(h.Sum32()%(vocabBuckets-1000)) + 1000
}
