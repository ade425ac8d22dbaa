package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimatorTokenizer(t *testing.T) {
	tokenizer := EstimatorTokenizer{}

	t.Run("empty text counts zero", func(t *testing.T) {
		n, err := tokenizer.CountTokens("")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("ascii roughly four chars per token", func(t *testing.T) {
		n, err := tokenizer.CountTokens(strings.Repeat("a", 40))
		require.NoError(t, err)
		assert.Equal(t, 10, n)
	})

	t.Run("cjk denser than ascii", func(t *testing.T) {
		cjk, err := tokenizer.CountTokens(strings.Repeat("中", 30))
		require.NoError(t, err)
		ascii, err := tokenizer.CountTokens(strings.Repeat("a", 30))
		require.NoError(t, err)
		assert.Greater(t, cjk, ascii)
		assert.Equal(t, 20, cjk)
	})

	t.Run("non-empty text never counts zero", func(t *testing.T) {
		n, err := tokenizer.CountTokens("a")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("messages include per-message overhead", func(t *testing.T) {
		n, err := tokenizer.CountMessages([]Message{
			NewUserMessage(strings.Repeat("a", 4)),
			NewAssistantMessage(strings.Repeat("a", 4)),
		})
		require.NoError(t, err)
		// 每条消息 1 token 内容 + 4 开销，再加 3 收尾
		assert.Equal(t, 13, n)
	})
}

func TestNewTiktokenTokenizer_EncodingSelection(t *testing.T) {
	assert.Equal(t, "o200k_base", NewTiktokenTokenizer("gpt-4o").encoding)
	assert.Equal(t, "o200k_base", NewTiktokenTokenizer("gpt-4o-2024-08-06").encoding)
	assert.Equal(t, "cl100k_base", NewTiktokenTokenizer("gpt-3.5-turbo").encoding)
	assert.Equal(t, "cl100k_base", NewTiktokenTokenizer("unknown-model").encoding)
}
