package llm

import (
	"log"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	tokenizerOnce sync.Once
	tokenizer     *tiktoken.Tiktoken
)

// CountTokens estimates the number of tokens in text using the cl100k_base
// encoding. When the encoding cannot be loaded (offline environments without
// a cached BPE file) it falls back to the rough chars/4 heuristic, which is
// close enough for the summary trigger threshold.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}

	tokenizerOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Printf("llm: tokenizer unavailable, using estimate: %v", err)
			return
		}
		tokenizer = enc
	})

	if tokenizer != nil {
		return len(tokenizer.Encode(text, nil, nil))
	}
	return estimateTokens(text)
}

// estimateTokens approximates token count as one token per 4 characters.
func estimateTokens(text string) int {
	n := (len(text) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}
