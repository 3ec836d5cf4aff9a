package utils

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestCalculateHashMatchesGitBlobSHA(t *testing.T) {
	// git hash-object of an empty file and of "hello\n"
	assert.Equal(t, CalculateHash([]byte{}), "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391")
	assert.Equal(t, CalculateHash([]byte("hello\n")), "ce013625030ba8dba906f756967f9e9ca394464a")
}

func TestQuoteVersionRoundTrip(t *testing.T) {
	assert.Equal(t, QuoteVersion("abc"), "\"abc\"")
	assert.Equal(t, QuoteVersion(""), "")
	assert.Equal(t, UnquoteVersion(" \"abc\" "), "abc")
	assert.Equal(t, UnquoteVersion("abc"), "abc")
}

func TestGenerateRandomIDIsUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := GenerateRandomID()
		assert.Equal(t, len(id), 26)
		assert.Equal(t, seen[id], false)
		seen[id] = true
	}
}
