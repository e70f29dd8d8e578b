package rowmap

import (
	"bytes"
	"encoding/json"
)

func decodeNumber(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
