package channel

import (
	"encoding/json"
	"fmt"
)

// UnmarshalMeta decodes a wire-format meta object into the Meta variant its
// channel name selects, completing the tagged-union round trip described in
// §9: the Job payload serializes the tag (Channel) plus the variant, and
// this is the single place that re-hydrates it back into a typed Meta.
func UnmarshalMeta(name Name, raw json.RawMessage) (Meta, error) {
	switch name {
	case Email:
		var m EmailMeta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode email meta: %w", err)
		}
		return m, nil
	case Firebase:
		var m PushMeta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode push meta: %w", err)
		}
		return m, nil
	case Telegram:
		var m ChatMeta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode chat meta: %w", err)
		}
		return m, nil
	case Web:
		var m WebMeta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode web meta: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown channel name %q", name)
	}
}
