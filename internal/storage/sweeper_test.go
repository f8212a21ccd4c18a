package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/vatsim-engine/internal/database"
)

type fakeTransceiverStore struct {
	rows       []database.TransceiverRow
	pruneCalls int
}

func (s *fakeTransceiverStore) ExportTransceivers(_ context.Context, cutoff time.Time, fn func(*database.TransceiverRow) error) (int64, error) {
	var n int64
	for i := range s.rows {
		if !s.rows[i].Timestamp.Before(cutoff) {
			continue
		}
		if err := fn(&s.rows[i]); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *fakeTransceiverStore) PruneTransceivers(_ context.Context, cutoff time.Time) (int64, error) {
	s.pruneCalls++
	var pruned int64
	var kept []database.TransceiverRow
	for _, r := range s.rows {
		if r.Timestamp.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, r)
	}
	s.rows = kept
	return pruned, nil
}

type fakePutter struct {
	key  string
	body []byte
	puts int
	err  error
}

func (p *fakePutter) Put(_ context.Context, key string, body []byte, _ string) error {
	if p.err != nil {
		return p.err
	}
	p.puts++
	p.key = key
	p.body = body
	return nil
}

func testSweeper(store *fakeTransceiverStore, put objectPutter) *Sweeper {
	return &Sweeper{
		db:        store,
		retention: time.Hour,
		export:    put,
		log:       zerolog.Nop(),
	}
}

func TestSweepExportsThenPrunes(t *testing.T) {
	old := time.Now().UTC().Add(-2 * time.Hour)
	store := &fakeTransceiverStore{rows: []database.TransceiverRow{
		{Callsign: "JST211", FrequencyHz: 124700000, EntityType: database.EntityFlight, Timestamp: old},
		{Callsign: "CB_TWR", FrequencyHz: 124700000, EntityType: database.EntityATC, Timestamp: old.Add(time.Minute)},
		{Callsign: "QFA1", FrequencyHz: 118700000, EntityType: database.EntityFlight, Timestamp: time.Now().UTC()},
	}}
	put := &fakePutter{}

	if err := testSweeper(store, put).Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if put.puts != 1 {
		t.Fatalf("uploads = %d, want 1", put.puts)
	}
	if !strings.HasSuffix(put.key, ".jsonl.gz") {
		t.Errorf("object key = %q, want a .jsonl.gz suffix", put.key)
	}

	// The object must be a complete gzip stream; a truncated one fails
	// here at the trailer check.
	gz, err := gzip.NewReader(bytes.NewReader(put.body))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	dec := json.NewDecoder(gz)
	var exported []database.TransceiverRow
	for {
		var r database.TransceiverRow
		if err := dec.Decode(&r); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("decode exported row: %v", err)
		}
		exported = append(exported, r)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	if len(exported) != 2 {
		t.Fatalf("exported rows = %d, want 2", len(exported))
	}
	if exported[0].Callsign != "JST211" || exported[1].Callsign != "CB_TWR" {
		t.Errorf("exported = %q, %q, want JST211, CB_TWR", exported[0].Callsign, exported[1].Callsign)
	}

	if store.pruneCalls != 1 {
		t.Errorf("prune calls = %d, want 1", store.pruneCalls)
	}
	if len(store.rows) != 1 || store.rows[0].Callsign != "QFA1" {
		t.Errorf("remaining rows = %+v, want only the fresh QFA1 row", store.rows)
	}
}

func TestSweepExportFailureLeavesRows(t *testing.T) {
	old := time.Now().UTC().Add(-2 * time.Hour)
	store := &fakeTransceiverStore{rows: []database.TransceiverRow{
		{Callsign: "JST211", Timestamp: old},
	}}
	put := &fakePutter{err: errors.New("bucket unavailable")}

	if err := testSweeper(store, put).Sweep(context.Background()); err == nil {
		t.Fatal("Sweep should fail when the export upload fails")
	}
	if store.pruneCalls != 0 {
		t.Errorf("prune calls = %d, want 0 after a failed export", store.pruneCalls)
	}
	if len(store.rows) != 1 {
		t.Errorf("rows = %d, want 1 left in place for the next sweep", len(store.rows))
	}
}

func TestSweepNothingExpiringSkipsUpload(t *testing.T) {
	store := &fakeTransceiverStore{rows: []database.TransceiverRow{
		{Callsign: "QFA1", Timestamp: time.Now().UTC()},
	}}
	put := &fakePutter{}

	if err := testSweeper(store, put).Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if put.puts != 0 {
		t.Errorf("uploads = %d, want 0 with nothing expiring", put.puts)
	}
	if store.pruneCalls != 1 {
		t.Errorf("prune calls = %d, want 1", store.pruneCalls)
	}
}

func TestSweepWithoutExportTarget(t *testing.T) {
	old := time.Now().UTC().Add(-2 * time.Hour)
	store := &fakeTransceiverStore{rows: []database.TransceiverRow{
		{Callsign: "JST211", Timestamp: old},
	}}

	if err := testSweeper(store, nil).Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(store.rows) != 0 {
		t.Errorf("rows = %d, want 0 pruned without export", len(store.rows))
	}
}
