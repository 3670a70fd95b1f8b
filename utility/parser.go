package utility

import (
	"encoding/json"
)

// ParseJson splits a JSON array into its raw elements without decoding them
func ParseJson(b []byte) ([]json.RawMessage, error) {
	var array []json.RawMessage
	err := json.Unmarshal(b, &array)
	return array, err
}
