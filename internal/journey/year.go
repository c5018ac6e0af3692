package journey

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Placeholder is written for a year that has not been set yet.
const Placeholder = "N/A"

// Year is an integer year that may be unset. State files written by earlier
// versions store a placeholder string such as "N/A" before the first run;
// Year keeps that raw value so it survives a load/save round trip.
type Year struct {
	value int
	set   bool
	raw   json.RawMessage
}

// YearOf returns a set year.
func YearOf(v int) Year {
	return Year{value: v, set: true}
}

// Int returns the year and whether it is set.
func (y Year) Int() (int, bool) {
	return y.value, y.set
}

// IsSet reports whether the year holds an integer.
func (y Year) IsSet() bool {
	return y.set
}

func (y Year) String() string {
	if y.set {
		return strconv.Itoa(y.value)
	}
	if len(y.raw) > 0 {
		var s string
		if err := json.Unmarshal(y.raw, &s); err == nil {
			return s
		}
		return string(y.raw)
	}
	return Placeholder
}

// MarshalJSON writes the integer, the original raw value, or the placeholder.
func (y Year) MarshalJSON() ([]byte, error) {
	if y.set {
		return []byte(strconv.Itoa(y.value)), nil
	}
	if len(y.raw) > 0 {
		return y.raw, nil
	}
	return json.Marshal(Placeholder)
}

// UnmarshalJSON accepts any JSON value. Only integer literals make the year
// set; strings, floats, booleans and null leave it unset.
func (y *Year) UnmarshalJSON(data []byte) error {
	*y = Year{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}

	if n, ok := v.(json.Number); ok {
		if i, err := strconv.Atoi(n.String()); err == nil {
			y.value = i
			y.set = true
			return nil
		}
	}

	y.raw = append(json.RawMessage(nil), trimmed...)
	return nil
}
