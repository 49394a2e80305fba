// Package store persists one JSON record per completed interview session.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/speaklevel/interview-gateway/internal/assess"
)

// Survey is the participant's post-interview feedback.
type Survey struct {
	Rating      int       `json:"rating"`
	Comments    string    `json:"comments,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Record is the persisted outcome of one session.
type Record struct {
	SessionID     string         `json:"session_id"`
	CreatedAt     time.Time      `json:"created_at"`
	Report        *assess.Report `json:"report"`
	VerbalSummary string         `json:"verbal_summary,omitempty"`
	Survey        *Survey        `json:"survey,omitempty"`
}

// Reports writes session records under a directory, one file per session.
// All writes go through a temp file and rename so a partially-written record
// is never visible. Appends for the same store are serialized.
type Reports struct {
	dir string
	mu  sync.Mutex
}

// NewReports creates the directory if needed.
func NewReports(dir string) (*Reports, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report store dir: %w", err)
	}
	return &Reports{dir: dir}, nil
}

func (r *Reports) path(sessionID string) string {
	return filepath.Join(r.dir, sessionID+".json")
}

// Save writes the record for a completed session.
func (r *Reports) Save(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.write(rec)
}

// AppendSurvey fills the survey sub-record of an existing session record.
func (r *Reports) AppendSurvey(sessionID string, survey Survey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.read(sessionID)
	if err != nil {
		return err
	}
	rec.Survey = &survey
	return r.write(*rec)
}

// Get returns the record for one session.
func (r *Reports) Get(sessionID string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read(sessionID)
}

// List returns all records, newest first.
func (r *Reports) List() ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	var records []Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		rec, err := r.read(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt.After(records[j].CreatedAt) })
	return records, nil
}

func (r *Reports) read(sessionID string) (*Record, error) {
	data, err := os.ReadFile(r.path(sessionID))
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", sessionID, err)
	}
	var rec Record
	if err = json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", sessionID, err)
	}
	return &rec, nil
}

func (r *Reports) write(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report %s: %w", rec.SessionID, err)
	}

	tmp, err := os.CreateTemp(r.dir, rec.SessionID+".tmp-*")
	if err != nil {
		return fmt.Errorf("write report %s: %w", rec.SessionID, err)
	}
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write report %s: %w", rec.SessionID, err)
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write report %s: %w", rec.SessionID, err)
	}
	if err = os.Rename(tmp.Name(), r.path(rec.SessionID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace report %s: %w", rec.SessionID, err)
	}
	return nil
}
