package worker

import (
	"sort"

	"tgz2objects/internal/archive"
	"tgz2objects/internal/storage"
)

// Outcome tags a Record
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeError
)

func (o Outcome) String() string {
	if o == OutcomeSuccess {
		return "success"
	}
	return "error"
}

// Record is the outcome of one archive entry, keyed by its position in the
// archive stream. Response is set for every success.
type Record struct {
	Index    int
	Entry    archive.Entry
	Outcome  Outcome
	Response *storage.UploadInfo
	Err      error
}

// Failed reports whether the record holds an error
func (r Record) Failed() bool {
	return r.Outcome == OutcomeError
}

// Results maps entry positions to their outcome across attempts. A position
// without a record has not been reached by any attempt yet.
// It is owned by a single goroutine and is not safe for concurrent use.
type Results struct {
	records map[int]Record
}

// NewResults creates an empty result set
func NewResults() *Results {
	return &Results{records: make(map[int]Record)}
}

// Get returns the record at index, if any
func (r *Results) Get(index int) (Record, bool) {
	rec, ok := r.records[index]
	return rec, ok
}

// Succeeded reports whether index holds a success record
func (r *Results) Succeeded(index int) bool {
	rec, ok := r.records[index]
	return ok && !rec.Failed()
}

// Put stores rec at rec.Index. A success record is never replaced by an
// error record.
func (r *Results) Put(rec Record) {
	if rec.Failed() && r.Succeeded(rec.Index) {
		return
	}
	r.records[rec.Index] = rec
}

// DropFailed removes every error record so those entries are retried
func (r *Results) DropFailed() {
	for index, rec := range r.records {
		if rec.Failed() {
			delete(r.records, index)
		}
	}
}

// Len returns the number of records
func (r *Results) Len() int {
	return len(r.records)
}

// Records returns all records ordered by index
func (r *Results) Records() []Record {
	indexes := make([]int, 0, len(r.records))
	for index := range r.records {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	out := make([]Record, 0, len(indexes))
	for _, index := range indexes {
		out = append(out, r.records[index])
	}
	return out
}

// Err returns the error of the first failed record, or nil
func (r *Results) Err() error {
	for _, rec := range r.Records() {
		if rec.Failed() {
			return rec.Err
		}
	}
	return nil
}
