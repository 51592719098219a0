package embedding

import (
	"encoding/json"
	"fmt"
)

// Encode serializes v as a JSON array. encoding/json writes float32 values
// with the shortest representation that parses back to the same float32,
// so Decode(Encode(v)) == v bit for bit.
func Encode(v []float32) ([]byte, error) {
	if v == nil {
		v = []float32{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode embedding: %w", err)
	}
	return data, nil
}

// Decode parses a JSON array produced by Encode.
func Decode(data []byte) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	return v, nil
}
