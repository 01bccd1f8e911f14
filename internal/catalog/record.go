package catalog

import (
	"encoding/json"
	"fmt"
)

// Record is one catalog entry as written by the repository-list refresh
// tool: a 4-element array of organization, clone URL, metadata paths and
// curator kind (null when the repository has no build tooling).
type Record struct {
	Organization  string
	CloneURL      string
	MetadataPaths []string
	Curator       string
}

// UnmarshalJSON decodes the 4-tuple form.
func (r *Record) UnmarshalJSON(data []byte) error {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("record must be an array: %w", err)
	}
	if len(fields) != 4 {
		return fmt.Errorf("record must have 4 fields, got %d", len(fields))
	}

	if err := json.Unmarshal(fields[0], &r.Organization); err != nil {
		return fmt.Errorf("organization: %w", err)
	}
	if err := json.Unmarshal(fields[1], &r.CloneURL); err != nil {
		return fmt.Errorf("clone url: %w", err)
	}
	if err := json.Unmarshal(fields[2], &r.MetadataPaths); err != nil {
		return fmt.Errorf("metadata paths: %w", err)
	}

	var curator *string
	if err := json.Unmarshal(fields[3], &curator); err != nil {
		return fmt.Errorf("curator: %w", err)
	}
	r.Curator = ""
	if curator != nil {
		r.Curator = *curator
	}
	return nil
}

// MarshalJSON encodes the 4-tuple form.
func (r Record) MarshalJSON() ([]byte, error) {
	var curator any
	if r.Curator != "" {
		curator = r.Curator
	}
	paths := r.MetadataPaths
	if paths == nil {
		paths = []string{}
	}
	return json.Marshal([]any{r.Organization, r.CloneURL, paths, curator})
}

// RecordError reports a malformed catalog record.
type RecordError struct {
	Index int
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record[%d]: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
