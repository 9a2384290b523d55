package diagnosis

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

var errInvalidJSON = errors.New("invalid JSON")

// ExtractJSONSpan returns the text from the first '{' to the last '}' inclusive.
// ok is false when the reply lacks either brace. When the last '}' precedes the
// first '{' the span is empty and will fail to parse.
func ExtractJSONSpan(reply string) (span string, ok bool) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < 0 {
		return "", false
	}
	if end < start {
		return "", true
	}
	return reply[start : end+1], true
}

// Normalize maps a raw model reply onto an Outcome. It checks JSON well-formedness
// only; keys, enumerations and ranges pass through untouched.
func Normalize(reply string) Outcome {
	span, ok := ExtractJSONSpan(reply)
	if !ok {
		return rawErrorOutcome(OutcomeNotJSON, MsgNotJSON, reply)
	}

	pretty, err := indentObject(span)
	if err != nil {
		return rawErrorOutcome(OutcomeParseError, MsgParseFailed, reply)
	}
	return resultOutcome(pretty)
}

// indentObject re-serialises span with a 2-space indent. Key order and number
// literals are preserved as written. A repeated key keeps its first position
// and takes its last value, the way a map-based decoder would see it.
func indentObject(span string) ([]byte, error) {
	data := []byte(span)
	if !json.Valid(data) {
		return nil, errInvalidJSON
	}
	var compact bytes.Buffer
	if err := writeDeduped(&compact, data); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeDeduped copies the value in raw to buf, collapsing repeated object keys.
// Scalars are copied byte for byte.
func writeDeduped(buf *bytes.Buffer, raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return errInvalidJSON
	}
	switch raw[0] {
	case '{':
		return writeDedupedObject(buf, raw)
	case '[':
		return writeDedupedArray(buf, raw)
	default:
		buf.Write(raw)
		return nil
	}
}

func writeDedupedObject(buf *bytes.Buffer, raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return err
	}

	type member struct {
		key   []byte
		value json.RawMessage
	}
	var members []member
	seen := make(map[string]int)

	for dec.More() {
		prev := dec.InputOffset()
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return errInvalidJSON
		}
		// the key as written, escapes included
		key := bytes.Trim(raw[prev:dec.InputOffset()], " \t\r\n,")

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		if i, dup := seen[name]; dup {
			members[i].value = value
			continue
		}
		seen[name] = len(members)
		members = append(members, member{key: key, value: value})
	}

	buf.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(m.key)
		buf.WriteByte(':')
		if err := writeDeduped(buf, m.value); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeDedupedArray(buf *bytes.Buffer, raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return err
	}

	buf.WriteByte('[')
	for i := 0; dec.More(); i++ {
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeDeduped(buf, value); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}
