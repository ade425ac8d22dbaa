package llm

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens for token/price statistics on agent thoughts.
type Tokenizer interface {
	CountTokens(text string) (int, error)
	CountMessages(messages []Message) (int, error)
}

// TiktokenTokenizer 基于 tiktoken 的精确计数器，适用于 OpenAI 系模型。
type TiktokenTokenizer struct {
	model    string
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// NewTiktokenTokenizer creates a tiktoken-backed tokenizer for the model.
// Unknown models fall back to cl100k_base.
func NewTiktokenTokenizer(model string) *TiktokenTokenizer {
	encoding, ok := modelEncodings[model]
	if !ok {
		// 最长前缀匹配，避免 gpt-4o 系列落到 gpt-4 的编码上
		longest := 0
		for prefix, enc := range modelEncodings {
			if len(prefix) > longest && strings.HasPrefix(model, prefix) {
				encoding, ok = enc, true
				longest = len(prefix)
			}
		}
	}
	if !ok {
		encoding = "cl100k_base"
	}
	return &TiktokenTokenizer{model: model, encoding: encoding}
}

// init 惰性初始化编码表（首次使用时可能需要下载数据）。
func (t *TiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *TiktokenTokenizer) CountMessages(messages []Message) (int, error) {
	total := 0
	for _, msg := range messages {
		n, err := t.CountTokens(msg.Content)
		if err != nil {
			return 0, err
		}
		// ~4 tokens of per-message overhead (role markers, separators).
		total += n + 4
	}
	return total + 3, nil
}

// EstimatorTokenizer 字符数估算器，区分 CJK 与 ASCII，
// 作为无法加载编码表时的兜底实现。
type EstimatorTokenizer struct{}

func (EstimatorTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	totalChars := utf8.RuneCountInString(text)
	cjkCount := 0
	for _, r := range text {
		if isCJK(r) {
			cjkCount++
		}
	}
	// CJK ~1.5 chars/token, ASCII ~4 chars/token.
	estimated := int(float64(cjkCount)/1.5 + float64(totalChars-cjkCount)/4.0)
	if estimated == 0 {
		estimated = 1
	}
	return estimated, nil
}

func (e EstimatorTokenizer) CountMessages(messages []Message) (int, error) {
	total := 0
	for _, msg := range messages {
		n, _ := e.CountTokens(msg.Content)
		total += n + 4
	}
	return total + 3, nil
}

func isCJK(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF: // CJK Unified Ideographs
		return true
	case r >= 0x3040 && r <= 0x30FF: // Hiragana + Katakana
		return true
	case r >= 0xAC00 && r <= 0xD7AF: // Hangul
		return true
	}
	return false
}
