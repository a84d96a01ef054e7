package correct

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/common"
)

func TestParseReplyObjectStrict(t *testing.T) {
	m, err := parseReplyObject(`{"invoice_number":"INV-1"}`)
	require.NoError(t, err)
	assert.Equal(t, "INV-1", m["invoice_number"])
}

func TestParseReplyObjectFenced(t *testing.T) {
	reply := "```json\n{\"invoice_number\": \"INV-2\"}\n```"
	m, err := parseReplyObject(reply)
	require.NoError(t, err)
	assert.Equal(t, "INV-2", m["invoice_number"])
}

func TestParseReplyObjectBareFence(t *testing.T) {
	reply := "```\n{\"total_amount\": \"10.00\"}\n```"
	m, err := parseReplyObject(reply)
	require.NoError(t, err)
	assert.Equal(t, "10.00", m["total_amount"])
}

func TestParseReplyObjectBraceSubstring(t *testing.T) {
	reply := `Sure! Here is the corrected data: {"supplier_name": "ACME Corp"} Hope that helps.`
	m, err := parseReplyObject(reply)
	require.NoError(t, err)
	assert.Equal(t, "ACME Corp", m["supplier_name"])
}

func TestParseReplyObjectMalformed(t *testing.T) {
	_, err := parseReplyObject("I could not read the document, sorry.")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrMalformedReply))
}

func TestParseReplyObjectNullValues(t *testing.T) {
	m, err := parseReplyObject(`{"due_date": null}`)
	require.NoError(t, err)
	v, ok := m["due_date"]
	require.True(t, ok)
	assert.Nil(t, v)
}
