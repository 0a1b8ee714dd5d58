// Package model defines shared data structures for the scrape service.
package model

// HiringTeamMember is one person listed in a posting's hiring team.
type HiringTeamMember struct {
	Name              string `json:"name"`
	Title             string `json:"title,omitempty"`
	ProfileURL        string `json:"profile_url,omitempty"`
	ConnectionDegree  string `json:"connection_degree,omitempty"`
	IsJobPoster       bool   `json:"is_job_poster"`
	MutualConnections string `json:"mutual_connections,omitempty"`
}

// MatchAnalysis compares a posting's required qualifications with the
// candidate profile. It is derived data and travels inside the posting row.
type MatchAnalysis struct {
	Summary               string   `json:"summary"`
	MatchedQualifications []string `json:"matched_qualifications"`
	MissingQualifications []string `json:"missing_qualifications"`
	TotalRequired         int      `json:"total_required"`
	TotalMatched          int      `json:"total_matched"`
}

// Posting is one scraped job listing. JobID is the source's posting
// identifier, not a scrape job id.
type Posting struct {
	JobID          string             `json:"job_id"`
	JobURL         string             `json:"job_url"`
	Collection     string             `json:"collection"`
	Title          string             `json:"title"`
	Company        string             `json:"company"`
	CompanyURL     string             `json:"company_url,omitempty"`
	Location       string             `json:"location,omitempty"`
	PostedTime     string             `json:"posted_time,omitempty"`
	EmploymentType string             `json:"employment_type,omitempty"`
	WorkplaceType  string             `json:"workplace_type,omitempty"`
	Promoted       bool               `json:"promoted"`
	EasyApply      bool               `json:"easy_apply"`
	ActivelyHiring bool               `json:"actively_hiring"`
	Description    string             `json:"description,omitempty"`
	HiringTeam     []HiringTeamMember `json:"hiring_team,omitempty"`
	MatchAnalysis  *MatchAnalysis     `json:"match_analysis,omitempty"`
}

// PostingDetail holds the fields only available from a posting's own page.
// Empty string fields mean "not present on the page" and never overwrite
// summary values.
type PostingDetail struct {
	Description    string
	EmploymentType string
	WorkplaceType  string
	HiringTeam     []HiringTeamMember
	Qualifications []string
}

// ApplyDetail merges d into p, keeping summary values where d is empty.
func (p *Posting) ApplyDetail(d *PostingDetail) {
	if d == nil {
		return
	}
	if d.Description != "" {
		p.Description = d.Description
	}
	if d.EmploymentType != "" {
		p.EmploymentType = d.EmploymentType
	}
	if d.WorkplaceType != "" {
		p.WorkplaceType = d.WorkplaceType
	}
	if len(d.HiringTeam) > 0 {
		p.HiringTeam = d.HiringTeam
	}
}
