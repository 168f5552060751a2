package utility

import (
	"encoding/json"
)

// ParseJson decodes an OCPP-J frame into its top level elements, leaving each element raw
func ParseJson(b []byte) ([]json.RawMessage, error) {
	var array []json.RawMessage
	err := json.Unmarshal(b, &array)
	return array, err
}
