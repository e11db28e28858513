package util

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/jinzhu/gorm/dialects/postgres"
)

// TimeNow Returns the current time in UTC. All timestamps stored and
// compared by the refresh pipeline are UTC.
func TimeNow() time.Time {
	return time.Now().UTC()
}

func TimeNowUnix() int64 {
	return TimeNow().Unix()
}

// GenerateHash To generate hash value for given byte array.
func GenerateHash(bytes []byte) string {
	hasher := sha1.New()
	hasher.Write(bytes)
	sha := base64.URLEncoding.EncodeToString(hasher.Sum(nil))
	return sha
}

// DecodePostgresJsonb Decodes a postgres jsonb column into a generic map.
func DecodePostgresJsonb(sourceJsonb *postgres.Jsonb) (*map[string]interface{}, error) {
	sourceJsonbBytes, err := sourceJsonb.Value()
	if err != nil {
		return nil, err
	}

	var sourceMap map[string]interface{}
	err = json.Unmarshal(sourceJsonbBytes.([]byte), &sourceMap)
	if err != nil {
		return nil, err
	}

	return &sourceMap, nil
}

// DecodePostgresJsonbToStructType Decodes a postgres jsonb column into the given struct type.
func DecodePostgresJsonbToStructType(sourceJsonb *postgres.Jsonb, structType interface{}) error {
	sourceJsonbBytes, err := sourceJsonb.Value()
	if err != nil {
		return err
	}

	return json.Unmarshal(sourceJsonbBytes.([]byte), structType)
}

// EncodeStructTypeToPostgresJsonb Encodes any struct type to postgres jsonb.
func EncodeStructTypeToPostgresJsonb(structType interface{}) (*postgres.Jsonb, error) {
	structTypeBytes, err := json.Marshal(structType)
	if err != nil {
		return nil, err
	}

	return &postgres.Jsonb{RawMessage: structTypeBytes}, nil
}

// IsEmptyPostgresJsonb Checks if a jsonb column is empty ({} or null).
func IsEmptyPostgresJsonb(sourceJsonb *postgres.Jsonb) bool {
	if sourceJsonb == nil {
		return true
	}

	sourceMap, err := DecodePostgresJsonb(sourceJsonb)
	if err != nil {
		return true
	}
	return len(*sourceMap) == 0
}

// IsEqualPostgresJsonb Field level equality of two jsonb documents,
// insensitive to key order.
func IsEqualPostgresJsonb(a, b *postgres.Jsonb) bool {
	aMap, errA := DecodePostgresJsonb(a)
	bMap, errB := DecodePostgresJsonb(b)
	if errA != nil || errB != nil {
		return false
	}
	return reflect.DeepEqual(*aMap, *bMap)
}

// SecondsToHMSString Converts given number of seconds to human readable 1h:2m:3s format.
func SecondsToHMSString(seconds int64) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secondsLeft := seconds % 3600 % 60
	return fmt.Sprintf("%dh:%dm:%ds", hours, minutes, secondsLeft)
}

func ContainsUint64InArray(array []uint64, value uint64) bool {
	for _, v := range array {
		if v == value {
			return true
		}
	}
	return false
}
