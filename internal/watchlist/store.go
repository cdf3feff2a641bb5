package watchlist

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrLastWatchlist is returned when a delete would leave the user with no
// watchlist at all. It is the only store error meant to reach the UI.
var ErrLastWatchlist = errors.New("cannot delete the last watchlist")

// ErrWatchlistNotFound is returned for operations addressing an unknown list id.
var ErrWatchlistNotFound = errors.New("watchlist not found")

// Persister is the storage port behind the store. Save is expected to be
// cheap for the caller; implementations queue and coalesce actual disk
// writes (see storage.Flusher).
type Persister interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// Store is the sole authority over the watchlist document. All reads and
// writes from other components go through it. Every mutation flushes the
// whole document through the Persister; a failed flush is logged and
// swallowed because the in-memory state stays correct for the session.
type Store struct {
	mu    sync.Mutex
	state State
	p     Persister
	now   func() time.Time

	// onSettings, when set, is invoked after every save with the current
	// settings so presentation-affecting fields (theme, log level) get
	// re-derived, mirroring the persistence-then-apply cycle of the UI.
	onSettings func(Settings)
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source, used by tests for stable AddedAt values.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSettingsHook registers a callback run after every persist.
func WithSettingsHook(fn func(Settings)) Option {
	return func(s *Store) { s.onSettings = fn }
}

// NewStore creates a store with defaults. Call Load to hydrate from disk.
func NewStore(p Persister, opts ...Option) *Store {
	s := &Store{
		state: DefaultState(),
		p:     p,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load hydrates the store from the persister. It fails open: on any storage
// error the store proceeds with defaults rather than blocking startup. A
// save is issued immediately afterwards so a freshly migrated document lands
// on disk in the new shape.
func (s *Store) Load(ctx context.Context) {
	data, err := s.p.Load(ctx)
	if err != nil {
		slog.Warn("watchlist load failed, starting from defaults", "error", err)
		data = nil
	}

	s.mu.Lock()
	s.state = DecodeState(data)
	lists := len(s.state.Watchlists)
	s.persistLocked(ctx)
	s.mu.Unlock()

	slog.Info("watchlist store hydrated", "watchlists", lists)
}

// persistLocked marshals the current state and hands it to the persister.
// Callers must hold s.mu. Errors never propagate; persistence is
// eventually-consistent and the in-memory document remains authoritative.
func (s *Store) persistLocked(ctx context.Context) {
	data, err := EncodeState(s.state)
	if err != nil {
		slog.Error("watchlist state marshal failed", "error", err)
		return
	}
	if err := s.p.Save(ctx, data); err != nil {
		slog.Error("watchlist save failed", "error", err)
	}
	if s.onSettings != nil {
		s.onSettings(s.state.Settings)
	}
}

// Snapshot returns a deep copy of the current document.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Settings returns the current settings record.
func (s *Store) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Settings
}

// activeLocked returns the index of the active watchlist, self-healing the
// pointer to the first list when it no longer resolves.
func (s *Store) activeLocked() int {
	if i := findWatchlist(s.state.Watchlists, s.state.ActiveWatchlistID); i >= 0 {
		return i
	}
	return 0
}

// ActiveWatchlist returns a copy of the active watchlist.
func (s *Store) ActiveWatchlist() Watchlist {
	s.mu.Lock()
	defer s.mu.Unlock()
	wl := s.state.Watchlists[s.activeLocked()]
	wl.Symbols = append([]Symbol(nil), wl.Symbols...)
	return wl
}

// CreateWatchlist appends a new empty watchlist, makes it active, and
// persists. Duplicate names are allowed.
func (s *Store) CreateWatchlist(ctx context.Context, name string) Watchlist {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := newListID(s.now())
	for findWatchlist(s.state.Watchlists, id) >= 0 {
		// Two creations within one millisecond; disambiguate.
		id += "x"
	}
	wl := Watchlist{ID: id, Name: name, Symbols: []Symbol{}}
	s.state.Watchlists = append(s.state.Watchlists, wl)
	s.state.ActiveWatchlistID = id
	s.persistLocked(ctx)
	return wl
}

// RenameWatchlist updates the display name of the addressed list.
func (s *Store) RenameWatchlist(ctx context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := findWatchlist(s.state.Watchlists, id)
	if i < 0 {
		return ErrWatchlistNotFound
	}
	s.state.Watchlists[i].Name = name
	s.persistLocked(ctx)
	return nil
}

// SetActiveWatchlist re-points the active list.
func (s *Store) SetActiveWatchlist(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if findWatchlist(s.state.Watchlists, id) < 0 {
		return ErrWatchlistNotFound
	}
	s.state.ActiveWatchlistID = id
	s.persistLocked(ctx)
	return nil
}

// DeleteWatchlist removes the addressed list. Deleting the last remaining
// watchlist is rejected with ErrLastWatchlist and leaves state unchanged.
func (s *Store) DeleteWatchlist(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.state.Watchlists) <= 1 {
		return ErrLastWatchlist
	}
	i := findWatchlist(s.state.Watchlists, id)
	if i < 0 {
		return ErrWatchlistNotFound
	}
	s.state.Watchlists = append(s.state.Watchlists[:i], s.state.Watchlists[i+1:]...)
	if s.state.ActiveWatchlistID == id {
		s.state.ActiveWatchlistID = s.state.Watchlists[0].ID
	}
	s.persistLocked(ctx)
	return nil
}

// AddSymbol inserts the pair at the head of the active watchlist. It reports
// false, leaving state untouched, when the (ticker, exchange) pair already
// exists. Callers use the signal for feedback and batch counting.
func (s *Store) AddSymbol(ctx context.Context, ticker string, exchange Exchange) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	wl := &s.state.Watchlists[s.activeLocked()]
	if containsSymbol(wl.Symbols, ticker, exchange) {
		return false
	}
	sym := Symbol{Ticker: ticker, Exchange: exchange, Color: ColorNone, AddedAt: s.now().UnixMilli()}
	wl.Symbols = append([]Symbol{sym}, wl.Symbols...)
	s.persistLocked(ctx)
	return true
}

// Entry is a bare (ticker, exchange) pair handed to AddSymbols by the
// scanner and the import codec.
type Entry struct {
	Ticker   string
	Exchange Exchange
}

// AddSymbols prepends the surviving entries as one contiguous block ahead of
// everything that existed before, preserving the relative input order among
// themselves. Entries already present (in the list or earlier in the same
// batch) are skipped. The whole batch persists once. Returns the count
// actually added.
func (s *Store) AddSymbols(ctx context.Context, entries []Entry) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	wl := &s.state.Watchlists[s.activeLocked()]
	now := s.now().UnixMilli()

	fresh := make([]Symbol, 0, len(entries))
	seen := make(map[Entry]bool, len(entries))
	for _, e := range entries {
		if e.Ticker == "" || seen[e] || containsSymbol(wl.Symbols, e.Ticker, e.Exchange) {
			continue
		}
		seen[e] = true
		fresh = append(fresh, Symbol{Ticker: e.Ticker, Exchange: e.Exchange, Color: ColorNone, AddedAt: now})
	}
	if len(fresh) == 0 {
		return 0
	}

	wl.Symbols = append(fresh, wl.Symbols...)
	s.persistLocked(ctx)
	return len(fresh)
}

// RemoveSymbol removes matching records from the active watchlist. An empty
// exchange matches the ticker on any exchange.
func (s *Store) RemoveSymbol(ctx context.Context, ticker string, exchange Exchange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wl := &s.state.Watchlists[s.activeLocked()]
	kept := wl.Symbols[:0]
	removed := false
	for _, sym := range wl.Symbols {
		if sym.Ticker == ticker && (exchange == "" || sym.Exchange == exchange) {
			removed = true
			continue
		}
		kept = append(kept, sym)
	}
	wl.Symbols = kept
	if removed {
		s.persistLocked(ctx)
	}
}

// CycleColor advances the first matching record's tag through the fixed
// color cycle. Unknown tickers are a no-op.
func (s *Store) CycleColor(ctx context.Context, ticker string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wl := &s.state.Watchlists[s.activeLocked()]
	for i := range wl.Symbols {
		if wl.Symbols[i].Ticker == ticker {
			wl.Symbols[i].Color = wl.Symbols[i].Color.Next()
			s.persistLocked(ctx)
			return
		}
	}
}

// MarkVisited records that the user opened a chart for the ticker. The set
// is write-once per ticker and never shrinks.
func (s *Store) MarkVisited(ctx context.Context, ticker string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.state.Visited {
		if v == ticker {
			return
		}
	}
	s.state.Visited = append(s.state.Visited, ticker)
	s.persistLocked(ctx)
}

// IsVisited reports whether the ticker's chart has ever been opened.
func (s *Store) IsVisited(ticker string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.state.Visited {
		if v == ticker {
			return true
		}
	}
	return false
}

// ToggleSidebar flips the persisted open flag and returns the new value.
// This backs the payload-free toggle message from external triggers.
func (s *Store) ToggleSidebar(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsOpen = !s.state.IsOpen
	s.persistLocked(ctx)
	return s.state.IsOpen
}

// SetSidebar sets the open flag to an explicit value.
func (s *Store) SetSidebar(ctx context.Context, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsOpen == open {
		return
	}
	s.state.IsOpen = open
	s.persistLocked(ctx)
}

// SetWidth persists the sidebar width so it survives reloads.
func (s *Store) SetWidth(ctx context.Context, width int) {
	if width <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Width = width
	s.persistLocked(ctx)
}

// SettingsPatch carries optional settings updates; nil fields are untouched.
// Each applied field independently counts as a mutation.
type SettingsPatch struct {
	Theme            *string
	ShowColWatchlist *bool
	ShowColChart     *bool
	LogLevel         *string
}

// UpdateSettings applies a patch and persists once when anything changed.
func (s *Store) UpdateSettings(ctx context.Context, patch SettingsPatch) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	if patch.Theme != nil && *patch.Theme != s.state.Settings.Theme {
		s.state.Settings.Theme = *patch.Theme
		changed = true
	}
	if patch.ShowColWatchlist != nil && *patch.ShowColWatchlist != s.state.Settings.ShowColWatchlist {
		s.state.Settings.ShowColWatchlist = *patch.ShowColWatchlist
		changed = true
	}
	if patch.ShowColChart != nil && *patch.ShowColChart != s.state.Settings.ShowColChart {
		s.state.Settings.ShowColChart = *patch.ShowColChart
		changed = true
	}
	if patch.LogLevel != nil && *patch.LogLevel != s.state.Settings.LogLevel {
		s.state.Settings.LogLevel = *patch.LogLevel
		changed = true
	}
	if changed {
		s.persistLocked(ctx)
	}
	return s.state.Settings
}

func containsSymbol(symbols []Symbol, ticker string, exchange Exchange) bool {
	for _, s := range symbols {
		if s.Ticker == ticker && s.Exchange == exchange {
			return true
		}
	}
	return false
}
