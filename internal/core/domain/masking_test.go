package domain

import (
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyMask_Redact(t *testing.T) {
	assert.Equal(t, "***", ApplyMask("DE89370400440532013000", MaskRedact))
	assert.Equal(t, "***", ApplyMask(422131, MaskRedact))
}

func TestApplyMask_Hash(t *testing.T) {
	got := ApplyMask("ACCT-998-1", MaskHash)

	want := fmt.Sprintf("%x", sha256.Sum256([]byte("ACCT-998-1")))
	assert.Equal(t, want, got)

	// Stable: the same input hashes identically, so masked columns stay joinable.
	assert.Equal(t, got, ApplyMask("ACCT-998-1", MaskHash))
	assert.NotEqual(t, got, ApplyMask("ACCT-998-2", MaskHash))
}

func TestApplyMask_Partial(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"DE89370400440532013000", "******************3000"},
		{"4111111111111111", "************1111"},
		{12345, "*2345"},
		{"abcd", "****"}, // short values are fully starred
		{"ab", "**"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ApplyMask(tt.in, MaskPartial), "input %v", tt.in)
	}
}

func TestApplyMask_PartialUnicode(t *testing.T) {
	got := ApplyMask("könig-straße", MaskPartial)
	assert.Equal(t, "********raße", got)
}

func TestApplyMask_Null(t *testing.T) {
	assert.Nil(t, ApplyMask("secret", MaskNull))
}

func TestApplyMask_NilPassthrough(t *testing.T) {
	for _, m := range []MaskType{MaskRedact, MaskHash, MaskPartial, MaskNull, ""} {
		assert.Nil(t, ApplyMask(nil, m))
	}
}

func TestApplyMask_UnknownTypePassthrough(t *testing.T) {
	assert.Equal(t, "visible", ApplyMask("visible", MaskType("bogus")))
}

func TestMaskTypeValid(t *testing.T) {
	for _, m := range []MaskType{MaskRedact, MaskHash, MaskPartial, MaskNull, ""} {
		assert.True(t, m.Valid(), "mask %q", m)
	}
	assert.False(t, MaskType("truncate").Valid())
}

func TestMaskRows(t *testing.T) {
	rows := []map[string]any{
		{"id": 1, "account_number": "DE89370400440532013000", "balance": 1000.50},
		{"id": 2, "account_number": "FR1420041010050500013M02606", "balance": -20.00},
		{"id": 3, "balance": 0.0}, // column absent: untouched
	}
	masks := map[string]MaskType{
		"account_number": MaskRedact,
	}

	MaskRows(rows, masks)

	assert.Equal(t, "***", rows[0]["account_number"])
	assert.Equal(t, "***", rows[1]["account_number"])
	assert.Equal(t, 1000.50, rows[0]["balance"])
	_, present := rows[2]["account_number"]
	assert.False(t, present)
}

func TestMaskRows_NoMasks(t *testing.T) {
	rows := []map[string]any{{"account_number": "visible"}}
	MaskRows(rows, nil)
	assert.Equal(t, "visible", rows[0]["account_number"])
}
