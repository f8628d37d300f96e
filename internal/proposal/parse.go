package proposal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"plan-engine/internal/llm"
	"plan-engine/internal/plan"
	"plan-engine/internal/shared"
)

// MaxChanges bounds the size of a proposed delta.
const MaxChanges = 64

type wireDelta struct {
	Changes []wireChange `json:"changes"`
}

type wireChange struct {
	Week   string          `json:"week"`
	Day    *plan.Weekday   `json:"day"`
	Target plan.Target     `json:"target"`
	Field  plan.Field      `json:"field"`
	Value  json.RawMessage `json:"value"`
}

func malformed(format string, args ...any) error {
	return shared.Rejectf(shared.ReasonMalformedAIOutput, format, args...)
}

// Parse reads an agent response into a delta against snapshot. Unknown
// keys, paths that do not exist in snapshot, non-scalar values and values
// that cannot be read for their field reject the whole response.
func Parse(content string, snapshot plan.Plan) (plan.Delta, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(llm.ExtractJSON(content))))
	dec.DisallowUnknownFields()

	var w wireDelta
	if err := dec.Decode(&w); err != nil {
		return plan.Delta{}, malformed("response: %v", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return plan.Delta{}, malformed("response: trailing data")
	}
	if w.Changes == nil {
		return plan.Delta{}, malformed("changes")
	}
	if len(w.Changes) > MaxChanges {
		return plan.Delta{}, malformed("changes: %d exceeds %d", len(w.Changes), MaxChanges)
	}

	d := plan.Delta{Changes: make([]plan.Change, 0, len(w.Changes))}
	seen := make(map[string]bool, len(w.Changes))
	for i, wc := range w.Changes {
		if wc.Day == nil {
			return plan.Delta{}, malformed("changes[%d].day", i)
		}
		path := plan.Path{Week: wc.Week, Day: *wc.Day, Target: wc.Target, Field: wc.Field}
		if _, err := snapshot.ValueAt(path); err != nil {
			return plan.Delta{}, malformed("changes[%d]: %s", i, path)
		}
		if seen[path.Key()] {
			return plan.Delta{}, malformed("changes[%d]: duplicate %s", i, path)
		}
		seen[path.Key()] = true

		value, err := scalar(wc.Value)
		if err != nil {
			return plan.Delta{}, malformed("changes[%d].value", i)
		}
		// Week names are normalized to the plan's spelling.
		path.Week = snapshot.Week(wc.Week).Name
		d.Changes = append(d.Changes, plan.Change{Path: path, Value: value})
	}
	if _, err := plan.Apply(snapshot, d); err != nil {
		return plan.Delta{}, malformed("changes: %v", err)
	}
	return d, nil
}

func scalar(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("missing value")
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	}
	return "", fmt.Errorf("value is not a scalar")
}
