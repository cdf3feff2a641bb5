package watchlist

import (
	"encoding/json"
	"log/slog"
)

// DecodeState turns a persisted document into a well-formed State. It is
// deliberately total: a corrupt or legacy document yields defaults for
// whatever cannot be recovered instead of an error, so startup never blocks
// on bad data.
//
// Two document generations are accepted:
//   - the current multi-list shape (State)
//   - the legacy shape carrying a single top-level "watchlist" symbol array,
//     which is folded into the first watchlist before anything else runs
func DecodeState(data []byte) State {
	st := DefaultState()
	if len(data) == 0 {
		return st
	}

	// Unmarshalling over the defaults gives shallow-merge semantics: fields
	// absent from an old document keep their default values.
	if err := json.Unmarshal(data, &st); err != nil {
		slog.Warn("watchlist document unreadable, starting from defaults", "error", err)
		return DefaultState()
	}

	// Legacy single-array shape. The field only exists in old documents, so
	// it is decoded separately rather than kept on State.
	var legacy struct {
		Watchlist []Symbol `json:"watchlist"`
	}
	if err := json.Unmarshal(data, &legacy); err == nil && legacy.Watchlist != nil {
		if len(st.Watchlists) == 0 {
			st.Watchlists = DefaultState().Watchlists
		}
		st.Watchlists[0].Symbols = legacy.Watchlist
		slog.Info("migrated legacy single-list document", "symbols", len(legacy.Watchlist))
	}

	repair(&st)
	st.extra = unknownFields(data, st)
	return st
}

// unknownFields collects the top-level keys of data that the State schema
// does not model. They ride along on the decoded state so EncodeState can
// write them back instead of destroying them on the post-load save.
func unknownFields(data []byte, st State) map[string]json.RawMessage {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}
	encoded, err := json.Marshal(st)
	if err != nil {
		return nil
	}
	known := map[string]json.RawMessage{}
	if err := json.Unmarshal(encoded, &known); err != nil {
		return nil
	}
	// The legacy array is consumed by migration, not carried forward.
	known["watchlist"] = nil

	var extra map[string]json.RawMessage
	for k, v := range doc {
		if _, ok := known[k]; ok {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}
	return extra
}

// EncodeState marshals the document for persistence, folding preserved
// unknown fields back into the top level. Known fields always win.
func EncodeState(st State) ([]byte, error) {
	data, err := json.Marshal(st)
	if err != nil || len(st.extra) == 0 {
		return data, err
	}
	doc := make(map[string]json.RawMessage, len(st.extra)+8)
	if err := json.Unmarshal(data, &doc); err != nil {
		return data, nil
	}
	for k, v := range st.extra {
		if _, ok := doc[k]; !ok {
			doc[k] = v
		}
	}
	return json.Marshal(doc)
}

// repair fills missing substructures with defaults and restores the
// invariants a well-formed State must hold.
func repair(st *State) {
	def := DefaultState()

	if len(st.Watchlists) == 0 {
		st.Watchlists = def.Watchlists
	}
	for i := range st.Watchlists {
		if st.Watchlists[i].Symbols == nil {
			st.Watchlists[i].Symbols = []Symbol{}
		}
		for j := range st.Watchlists[i].Symbols {
			if st.Watchlists[i].Symbols[j].Color == "" {
				st.Watchlists[i].Symbols[j].Color = ColorNone
			}
		}
	}

	// Self-healing active pointer: fall back to the first list when the
	// recorded id no longer resolves.
	if findWatchlist(st.Watchlists, st.ActiveWatchlistID) < 0 {
		st.ActiveWatchlistID = st.Watchlists[0].ID
	}

	if st.Visited == nil {
		st.Visited = []string{}
	}
	if st.Width <= 0 {
		st.Width = def.Width
	}
	if st.Settings.Theme == "" {
		st.Settings.Theme = def.Settings.Theme
	}
	if st.Settings.LogLevel == "" {
		st.Settings.LogLevel = def.Settings.LogLevel
	}
}

func findWatchlist(lists []Watchlist, id string) int {
	for i := range lists {
		if lists[i].ID == id {
			return i
		}
	}
	return -1
}
