// Package inject keeps screener result tables annotated with watchlist and
// chart columns. The decision logic is a pure diff between desired column
// visibility and the marker state observed in the page; applying the
// resulting operations is left to a thin CDP evaluation layer.
package inject

// Column identifies one of the injected table columns.
type Column string

const (
	ColumnWatchlist Column = "watchlist"
	ColumnChart     Column = "chart"
)

// ColumnSettings is the desired visibility of the injected columns,
// derived from user settings.
type ColumnSettings struct {
	Watchlist bool
	Chart     bool
}

// RowState is the observed marker state of one data row.
type RowState struct {
	Ticker       string `json:"ticker"`
	HasWatchlist bool   `json:"hasWatchlist"`
	HasChart     bool   `json:"hasChart"`
}

// TableState is the observed marker state of one results table.
type TableState struct {
	Index       int        `json:"index"`
	HeaderWl    bool       `json:"headerWatchlist"`
	HeaderChart bool       `json:"headerChart"`
	Rows        []RowState `json:"rows"`
}

// OpKind says whether an element is inserted or removed.
type OpKind string

const (
	OpInsert OpKind = "insert"
	OpRemove OpKind = "remove"
)

// HeaderRow marks an Op that targets the header instead of a data row.
const HeaderRow = -1

// Op is one minimal DOM change. Row is the data-row index within the
// table, or HeaderRow for the header cell.
type Op struct {
	Kind   OpKind `json:"kind"`
	Column Column `json:"column"`
	Table  int    `json:"table"`
	Row    int    `json:"row"`
	Ticker string `json:"ticker,omitempty"`
}

// Reconcile diffs desired column visibility against observed marker state
// and returns the minimal operations that bring the page in line. Rows
// without a recognizable ticker are left untouched. Running Reconcile on a
// page that is already correct yields no operations.
func Reconcile(want ColumnSettings, tables []TableState) []Op {
	var ops []Op
	for _, tbl := range tables {
		ops = appendColumnOps(ops, tbl.Index, HeaderRow, "", ColumnWatchlist, want.Watchlist, tbl.HeaderWl)
		ops = appendColumnOps(ops, tbl.Index, HeaderRow, "", ColumnChart, want.Chart, tbl.HeaderChart)
		for i, row := range tbl.Rows {
			if row.Ticker == "" {
				continue
			}
			ops = appendColumnOps(ops, tbl.Index, i, row.Ticker, ColumnWatchlist, want.Watchlist, row.HasWatchlist)
			ops = appendColumnOps(ops, tbl.Index, i, row.Ticker, ColumnChart, want.Chart, row.HasChart)
		}
	}
	return ops
}

func appendColumnOps(ops []Op, table, row int, ticker string, col Column, want, have bool) []Op {
	switch {
	case want && !have:
		return append(ops, Op{Kind: OpInsert, Column: col, Table: table, Row: row, Ticker: ticker})
	case !want && have:
		return append(ops, Op{Kind: OpRemove, Column: col, Table: table, Row: row, Ticker: ticker})
	}
	return ops
}
