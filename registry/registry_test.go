/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIndexMap(t *testing.T) {
	defer UnregisterIndexMap("Players")

	assert.Equal(t, DefaultIndexMap, GetIndexMap("Players"))

	layout := map[string]string{"PK": "LEAGUE#{collection}", "SK": "PLAYER#{id}", "GSI1PK": "EMAIL#{email}"}
	require.NoError(t, RegisterIndexMap("Players", layout))
	layout["PK"] = "mutated"
	assert.Equal(t, "LEAGUE#{collection}", GetIndexMap("Players")["PK"], "registry keeps its own copy")

	UnregisterIndexMap("Players")
	assert.Equal(t, DefaultIndexMap, GetIndexMap("Players"))
}

func TestValidateIndexMap(t *testing.T) {
	cases := []struct {
		name   string
		layout map[string]string
		ok     bool
	}{
		{"Default", DefaultIndexMap, true},
		{"MissingPK", map[string]string{"SK": "{id}"}, false},
		{"MissingSK", map[string]string{"PK": "{collection}"}, false},
		{"IDInPK", map[string]string{"PK": "{collection}#{id}", "SK": "{id}"}, false},
		{"NoIDInSK", map[string]string{"PK": "{collection}", "SK": "STATIC"}, false},
		{"TwiceIDInSK", map[string]string{"PK": "{collection}", "SK": "{id}#{id}"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateIndexMap(tc.layout)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}

	assert.Error(t, RegisterIndexMap("", DefaultIndexMap))
}

func TestMacros(t *testing.T) {
	assert.Equal(t, []string{"collection", "email"}, Macros("{collection}#EMAIL#{email}"))
	assert.Empty(t, Macros("STATIC"))
}
