package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JoaoSantosCodes/SecureVault/internal/vault"
)

func TestQuery(t *testing.T) {
	idx := Build(map[string]map[string]vault.Entry{
		"General": {
			"github.com": {Username: "alice"},
			"mail.com":   {Username: "Alice@mail.com"},
		},
		"Bank": {
			"mybank.example": {Username: "acct-42"},
		},
	})
	assert.Equal(t, 3, idx.Len())

	assert.Equal(t, []Hit{
		{Group: "General", Website: "github.com", Username: "alice"},
		{Group: "General", Website: "mail.com", Username: "Alice@mail.com"},
	}, idx.Query("ALICE"))

	assert.Equal(t, []Hit{{Group: "Bank", Website: "mybank.example", Username: "acct-42"}}, idx.Query("bank"))
	assert.Len(t, idx.Query(""), 3)
	assert.Equal(t, "Bank", idx.Query("")[0].Group)
	assert.Empty(t, idx.Query("nothing"))
}

func TestQueryDoesNotSpanFields(t *testing.T) {
	idx := Build(map[string]map[string]vault.Entry{"G": {"ab": {Username: "cd"}}})
	assert.Empty(t, idx.Query("bc"))
}
