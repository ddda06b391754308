package generator

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validTicket = `{"title":"[Feature] Login","description":"Sign in","userStory":"As a user...","type":"feature","priority":"high","complexity":3,"position":1,"estimatedHours":6,"notes":null}`

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `[1]`, `[1]`},
		{"json fence", "```json\n[1]\n```", `[1]`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"inline json fence", "```json[1]```", `[1]`},
		{"surrounding whitespace", "  \n```json\n[1]\n```\n ", `[1]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestParseItems(t *testing.T) {
	items, err := ParseItems("```json\n[" + validTicket + "]\n```")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "[Feature] Login", items[0].Title)
	assert.Equal(t, 3, items[0].Complexity)
	require.NotNil(t, items[0].EstimatedHours)
	assert.Equal(t, 6, *items[0].EstimatedHours)
	assert.Nil(t, items[0].Notes)
}

func TestParseItemsNormalizes(t *testing.T) {
	raw := `[{"title":" Setup ","type":"Chore","priority":"LOW","complexity":1,"notes":"  "}]`
	items, err := ParseItems(raw)
	require.NoError(t, err)
	assert.Equal(t, "Setup", items[0].Title)
	assert.Equal(t, "chore", items[0].Type)
	assert.Equal(t, "low", items[0].Priority)
	assert.Equal(t, 1, items[0].Position)
	assert.Nil(t, items[0].Notes)
}

func TestParseItemsRejectsMalformedOutput(t *testing.T) {
	tooMany := make([]string, MaxItems+1)
	for i := range tooMany {
		tooMany[i] = validTicket
	}

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "Sure! Here are your tickets"},
		{"object instead of array", validTicket},
		{"empty array", "[]"},
		{"too many", "[" + strings.Join(tooMany, ",") + "]"},
		{"missing title", `[{"type":"feature","priority":"low","complexity":1}]`},
		{"unknown type", `[{"title":"x","type":"epic","priority":"low","complexity":1}]`},
		{"unknown priority", `[{"title":"x","type":"bug","priority":"urgent","complexity":1}]`},
		{"complexity out of range", `[{"title":"x","type":"bug","priority":"low","complexity":9}]`},
		{"negative estimate", `[{"title":"x","type":"bug","priority":"low","complexity":2,"estimatedHours":-3}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseItems(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedOutput), fmt.Sprintf("unexpected error %v", err))
		})
	}
}

func TestParseDetails(t *testing.T) {
	d, err := ParseDetails("```json\n{\"technicalSpecs\":[\"a\",\"b\"],\"acceptanceCriteria\":[\"c\"]}\n```")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, d.TechnicalSpecs)
	assert.Equal(t, []string{"c"}, d.AcceptanceCriteria)

	for _, raw := range []string{
		`[]`,
		`{"technicalSpecs":[],"acceptanceCriteria":["c"]}`,
		`{"technicalSpecs":["a"]}`,
		`{"technicalSpecs":["a"],"acceptanceCriteria":[""]}`,
	} {
		_, err := ParseDetails(raw)
		assert.ErrorIs(t, err, ErrMalformedOutput, raw)
	}
}
