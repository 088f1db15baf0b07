package features

import (
	"github.com/cespare/xxhash/v2"
	jsoniter "github.com/json-iterator/go"
)

// Standard-library compatible config sorts map keys, which keeps encoded records
// byte-for-byte reproducible.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MarshalRecords encodes records as a JSON array
func MarshalRecords(records []FeatureRecord) ([]byte, error) {
	return json.Marshal(records)
}

// UnmarshalRecords decodes a JSON array of records
func UnmarshalRecords(data []byte) ([]FeatureRecord, error) {
	var records []FeatureRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Digest returns the xxhash64 of the encoded records, for regression comparisons
func Digest(records []FeatureRecord) (uint64, error) {
	data, err := MarshalRecords(records)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(data), nil
}
