package blocks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Pair is one key/value entry of an OrderedMap.
type Pair struct {
	Key   string
	Value string
}

// OrderedMap is a string map that remembers insertion order. Setting an
// existing key replaces its value in place.
type OrderedMap struct {
	pairs []Pair
	index map[string]int
}

// Set adds or replaces key.
func (m *OrderedMap) Set(key, value string) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if i, ok := m.index[key]; ok {
		m.pairs[i].Value = value
		return
	}
	m.index[key] = len(m.pairs)
	m.pairs = append(m.pairs, Pair{Key: key, Value: value})
}

// Get returns the value stored for key.
func (m *OrderedMap) Get(key string) (string, bool) {
	if m == nil || m.index == nil {
		return "", false
	}
	i, ok := m.index[key]
	if !ok {
		return "", false
	}
	return m.pairs[i].Value, true
}

// Len is the number of entries; a nil map is empty.
func (m *OrderedMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.pairs)
}

// Pairs returns the entries in insertion order.
func (m *OrderedMap) Pairs() []Pair {
	if m == nil {
		return nil
	}
	out := make([]Pair, len(m.pairs))
	copy(out, m.pairs)
	return out
}

// MarshalJSON writes the entries as a JSON object in insertion order.
func (m OrderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range m.pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(p.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON iterates a JSON value the way a for..in loop would. An
// object keeps its own key order; an array is keyed by index ("0", "1", ...);
// null and other scalars leave the map empty. Entry values are rendered as
// text: strings as is, numbers and booleans in their literal form, null as
// the empty string. Nested objects and arrays have no text form and are
// skipped.
func (m *OrderedMap) UnmarshalJSON(data []byte) error {
	*m = OrderedMap{}
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch tok {
	case json.Delim('{'):
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return err
			}
			key, ok := keyTok.(string)
			if !ok {
				return fmt.Errorf("expected object key, got %v", keyTok)
			}
			if err := m.setRaw(dec, key); err != nil {
				return err
			}
		}
	case json.Delim('['):
		for i := 0; dec.More(); i++ {
			if err := m.setRaw(dec, strconv.Itoa(i)); err != nil {
				return err
			}
		}
	default:
		return nil
	}

	// closing delimiter
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

func (m *OrderedMap) setRaw(dec *json.Decoder, key string) error {
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("value for %q: %w", key, err)
	}
	if text, ok := scalarText(raw); ok {
		m.Set(key, text)
	}
	return nil
}

// scalarText is the text a JSON scalar turns into when written into a page.
func scalarText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case 'n':
		return "", true
	case 't', 'f':
		return string(raw), true
	case '{', '[':
		return "", false
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return "", false
	}
	return numberText(f), true
}

// numberText formats f like JavaScript's Number#toString for finite values.
func numberText(f float64) string {
	if f == 0 {
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		// Go pads the exponent to two digits, JavaScript does not
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		exp = strings.TrimLeft(exp[1:], "0")
		return mant + "e" + sign + exp
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
