package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestScanLogAppendsRecords(t *testing.T) {
	dir := t.TempDir()
	l := NewScanLog(dir, 1)

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	recs := []ScanRecord{
		{RunID: NewRunID(), StartURL: "https://www.screener.in/screens/1/demo/", StartedAt: start, FinishedAt: start.Add(time.Second), Pages: 2, Found: 40, Added: 12},
		{RunID: NewRunID(), StartURL: "https://www.screener.in/screens/2/other/", StartedAt: start, FinishedAt: start.Add(time.Second), Pages: 1, Found: 0, Added: 0, Error: "page fetch failed"},
	}
	for _, rec := range recs {
		if err := l.Append(rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	file, err := os.Open(filepath.Join(dir, "scans.jsonl"))
	if err != nil {
		t.Fatalf("open scan log: %v", err)
	}
	defer file.Close()

	var got []ScanRecord
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		var rec ScanRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad JSONL line %q: %v", sc.Text(), err)
		}
		got = append(got, rec)
	}
	if len(got) != len(recs) {
		t.Fatalf("lines = %d; want %d", len(got), len(recs))
	}
	if got[0].RunID != recs[0].RunID || got[0].Found != 40 {
		t.Fatalf("first record = %+v; want %+v", got[0], recs[0])
	}
	if got[1].Error != "page fetch failed" {
		t.Fatalf("second record error = %q; want %q", got[1].Error, "page fetch failed")
	}
}

func TestScanLogAppendAfterClose(t *testing.T) {
	l := NewScanLog(t.TempDir(), 1)
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := l.Append(ScanRecord{RunID: NewRunID()}); err == nil {
		t.Fatal("Append() after Close = nil; want error")
	}
}
