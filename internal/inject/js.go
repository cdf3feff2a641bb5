package inject

import (
	"fmt"

	"github.com/dgnsrekt/screener_agent/internal/cdpcontrol"
)

// CDP binding names exposed on annotated pages. The page scripts call these
// to hand user interactions back to the agent.
const (
	BindingAdd     = "__swlAdd"
	BindingChart   = "__swlChart"
	BindingMutated = "__swlMutated"
)

// Marker classes on injected elements. Reconciliation reads these instead
// of recomputing what a cell contains.
const (
	classHeaderWl    = "swl-col-watchlist"
	classHeaderChart = "swl-col-chart"
	classCellWl      = "swl-cell-watchlist"
	classCellChart   = "swl-cell-chart"
)

const jsTableHelpers = `
function _swlTables() {
  return Array.prototype.slice.call(document.querySelectorAll("table.data-table"));
}
function _swlTicker(row) {
  var links = row.querySelectorAll("a[href]");
  for (var i = 0; i < links.length; i++) {
    var m = links[i].getAttribute("href").match(/\/company\/([^\/]+)\//);
    if (m) return m[1].toUpperCase();
  }
  return "";
}
function _swlRows(table) {
  var body = table.tBodies.length ? table.tBodies[0] : null;
  return body ? Array.prototype.slice.call(body.rows) : [];
}
function _swlHeaderRow(table) {
  if (table.tHead && table.tHead.rows.length) return table.tHead.rows[0];
  var rows = table.rows;
  return rows.length ? rows[0] : null;
}
`

// jsScanTables reads the marker state of every results table on the page.
func jsScanTables() string {
	return cdpcontrol.WrapEval(jsTableHelpers + `
var tables = _swlTables();
var out = [];
for (var t = 0; t < tables.length; t++) {
  var table = tables[t];
  var header = _swlHeaderRow(table);
  var rows = _swlRows(table);
  var rowStates = [];
  for (var i = 0; i < rows.length; i++) {
    rowStates.push({
      ticker: _swlTicker(rows[i]),
      hasWatchlist: !!rows[i].querySelector("td.` + classCellWl + `"),
      hasChart: !!rows[i].querySelector("td.` + classCellChart + `")
    });
  }
  out.push({
    index: t,
    headerWatchlist: !!(header && header.querySelector("th.` + classHeaderWl + `")),
    headerChart: !!(header && header.querySelector("th.` + classHeaderChart + `")),
    rows: rowStates
  });
}
return JSON.stringify({ok:true,data:{tables:out}});`)
}

const jsApplyHelpers = `
function _swlInsertCell(row, cell, column) {
  if (column === "watchlist") { row.insertBefore(cell, row.firstChild); return; }
  var wl = row.querySelector(".swl-col-watchlist, .swl-cell-watchlist");
  if (wl && wl.nextSibling) { row.insertBefore(cell, wl.nextSibling); }
  else if (wl) { row.appendChild(cell); }
  else { row.insertBefore(cell, row.firstChild); }
}
function _swlRemoveCell(row, selector) {
  var cell = row.querySelector(selector);
  if (cell) cell.remove();
}
function _swlHeaderCell(column) {
  var th = document.createElement("th");
  th.className = column === "watchlist" ? "swl-col-watchlist" : "swl-col-chart";
  th.textContent = column === "watchlist" ? "WL" : "Chart";
  return th;
}
function _swlWatchlistCell(ticker) {
  var td = document.createElement("td");
  td.className = "swl-cell-watchlist";
  td.textContent = "+";
  td.style.cursor = "pointer";
  td.style.textAlign = "center";
  td.addEventListener("click", function() {
    td.style.color = "#2e7d32";
    td.style.transform = "scale(1.4)";
    setTimeout(function() { td.style.transform = ""; }, 300);
    if (window.__swlAdd) window.__swlAdd(JSON.stringify({ticker: ticker}));
  });
  return td;
}
function _swlChartCell(ticker, visited) {
  var td = document.createElement("td");
  td.className = "swl-cell-chart";
  td.textContent = "📈";
  td.style.cursor = "pointer";
  td.style.textAlign = "center";
  td.style.opacity = visited ? "0.5" : "1";
  td.addEventListener("click", function() {
    td.textContent = "…";
    td.style.opacity = "0.5";
    setTimeout(function() { td.textContent = "📈"; }, 1500);
    if (window.__swlChart) window.__swlChart(JSON.stringify({ticker: ticker}));
  });
  return td;
}
`

// jsApplyOps applies a reconciliation plan. visited controls the resting
// style of newly inserted chart cells.
func jsApplyOps(ops []Op, visited []string) string {
	return cdpcontrol.WrapEval(jsTableHelpers + jsApplyHelpers + `
var ops = ` + cdpcontrol.JSJSON(ops) + `;
var visited = ` + cdpcontrol.JSJSON(visited) + `;
var visitedSet = {};
for (var v = 0; v < visited.length; v++) visitedSet[visited[v]] = true;
var tables = _swlTables();
var applied = 0;
for (var i = 0; i < ops.length; i++) {
  var op = ops[i];
  var table = tables[op.table];
  if (!table) continue;
  var row = op.row < 0 ? _swlHeaderRow(table) : _swlRows(table)[op.row];
  if (!row) continue;
  if (op.kind === "remove") {
    var sel = op.row < 0
      ? (op.column === "watchlist" ? "th.swl-col-watchlist" : "th.swl-col-chart")
      : (op.column === "watchlist" ? "td.swl-cell-watchlist" : "td.swl-cell-chart");
    _swlRemoveCell(row, sel);
    applied++;
    continue;
  }
  var marker = op.row < 0
    ? (op.column === "watchlist" ? "th.swl-col-watchlist" : "th.swl-col-chart")
    : (op.column === "watchlist" ? "td.swl-cell-watchlist" : "td.swl-cell-chart");
  if (row.querySelector(marker)) continue;
  var cell;
  if (op.row < 0) { cell = _swlHeaderCell(op.column); }
  else if (op.column === "watchlist") { cell = _swlWatchlistCell(op.ticker); }
  else { cell = _swlChartCell(op.ticker, !!visitedSet[op.ticker]); }
  _swlInsertCell(row, cell, op.column);
  applied++;
}
return JSON.stringify({ok:true,data:{applied:applied}});`)
}

// jsInstallObserver installs a debounced MutationObserver that reports DOM
// churn back through the mutation binding. Installation is guarded so
// repeated evaluation leaves a single observer in place.
func jsInstallObserver(debounceMs int) string {
	return cdpcontrol.WrapEval(fmt.Sprintf(`
if (window.__swlObserver) {
  return JSON.stringify({ok:true,data:{installed:false}});
}
var timer = null;
var obs = new MutationObserver(function(muts) {
  var added = false;
  for (var i = 0; i < muts.length; i++) {
    if (muts[i].addedNodes && muts[i].addedNodes.length) { added = true; break; }
  }
  if (!added) return;
  if (timer) clearTimeout(timer);
  timer = setTimeout(function() {
    timer = null;
    if (window.%s) window.%s("");
  }, %d);
});
obs.observe(document.body, {childList: true, subtree: true});
window.__swlObserver = obs;
return JSON.stringify({ok:true,data:{installed:true}});`, BindingMutated, BindingMutated, debounceMs))
}
