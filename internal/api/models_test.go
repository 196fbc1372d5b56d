package api_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
)

func TestID_MarshalJSON(t *testing.T) {
	tests := []struct {
		id   api.ID
		want string
	}{
		{"42", `42`},
		{"-7", `-7`},
		{"0", `0`},
		{"007", `"007"`},
		{"+5", `"+5"`},
		{"-0", `"-0"`},
		{"99999999999999999999", `"99999999999999999999"`},
		{"P001", `"P001"`},
		{"", `""`},
	}
	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			b, err := json.Marshal(struct {
				ID api.ID `json:"id"`
			}{tt.id})
			require.NoError(t, err)
			require.True(t, json.Valid(b), "invalid JSON %s", b)
			assert.JSONEq(t, `{"id":`+tt.want+`}`, string(b))

			var back struct {
				ID api.ID `json:"id"`
			}
			require.NoError(t, json.Unmarshal(b, &back))
			assert.Equal(t, tt.id, back.ID)
		})
	}
}

func TestID_UnmarshalJSON(t *testing.T) {
	var v struct {
		A api.ID `json:"a"`
		B api.ID `json:"b"`
		C api.ID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":12,"b":"x-9","c":null}`), &v))
	assert.Equal(t, api.ID("12"), v.A)
	assert.Equal(t, api.ID("x-9"), v.B)
	assert.Empty(t, v.C)

	assert.Error(t, json.Unmarshal([]byte(`{"a":true}`), &v))
}
