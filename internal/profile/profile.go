// Package profile loads the candidate profile that scraped postings are
// matched against.
package profile

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed profile.schema.json
var schemaJSON string

// Profile is the candidate side of a qualification match.
type Profile struct {
	Name  string   `json:"name,omitempty"`
	Quals []string `json:"qualifications"`
	// Flags are exclusion terms; postings mentioning any are never saved.
	Flags []string `json:"red_flags,omitempty"`
}

// Qualifications returns the candidate's qualifications. The slice is a copy.
func (p *Profile) Qualifications() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.Quals...)
}

// RedFlags returns the candidate's exclusion terms. The slice is a copy.
func (p *Profile) RedFlags() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.Flags...)
}

// Load reads and validates the profile at path. An empty path yields an
// empty profile, so every posting reports all its qualifications missing.
func Load(path string) (*Profile, error) {
	if path == "" {
		return &Profile{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read candidate profile: %w", err)
	}
	return Parse(raw)
}

// Parse validates raw against the profile schema and decodes it.
func Parse(raw []byte) (*Profile, error) {
	res, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("candidate profile: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("candidate profile schema validation failed: %s", strings.Join(msgs, "; "))
	}

	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode candidate profile: %w", err)
	}
	return &p, nil
}
