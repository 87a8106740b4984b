package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// NotAvailable is the sentinel written for a paint time the page never reported.
const NotAvailable = "N/A"

var jsonNull = []byte("null")

// Millis is an optional duration in whole milliseconds.
// An invalid value serializes as null.
type Millis struct {
	Value int64
	Valid bool
}

// SomeMillis returns a valid Millis.
func SomeMillis(v int64) Millis {
	return Millis{Value: v, Valid: true}
}

// String renders the value for the diagnostic tables.
func (m Millis) String() string {
	if !m.Valid {
		return "unavailable"
	}
	return strconv.FormatInt(m.Value, 10) + " ms"
}

// MarshalJSON implements json.Marshaler.
func (m Millis) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return jsonNull, nil
	}
	return []byte(strconv.FormatInt(m.Value, 10)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Millis) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, jsonNull) {
		*m = Millis{}
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("millis: %w", err)
	}
	*m = SomeMillis(v)
	return nil
}

// PaintTime is the start time of the first paint entry, or the "N/A"
// sentinel when the page never painted or the engine cannot observe paints.
type PaintTime struct {
	Value int64
	Valid bool
}

// SomePaintTime returns a valid PaintTime.
func SomePaintTime(v int64) PaintTime {
	return PaintTime{Value: v, Valid: true}
}

// String renders the value for the diagnostic tables.
func (p PaintTime) String() string {
	if !p.Valid {
		return NotAvailable
	}
	return strconv.FormatInt(p.Value, 10) + " ms"
}

// MarshalJSON implements json.Marshaler.
func (p PaintTime) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return json.Marshal(NotAvailable)
	}
	return []byte(strconv.FormatInt(p.Value, 10)), nil
}

// UnmarshalJSON implements json.Unmarshaler. Any string decodes as the sentinel.
func (p *PaintTime) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		*p = PaintTime{}
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("paint time: %w", err)
	}
	*p = SomePaintTime(v)
	return nil
}
