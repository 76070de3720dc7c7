package dto

import "time"

// FacultyInput describes one instructor in a request catalog.
type FacultyInput struct {
	ID              string   `json:"id" validate:"required"`
	Name            string   `json:"name" validate:"required"`
	TotalCredits    int      `json:"totalCredits" validate:"min=0"`
	ResearchCredits int      `json:"researchCredits" validate:"min=0,ltefield=TotalCredits"`
	Subjects        []string `json:"subjects" validate:"required,min=1,dive,required"`
}

// SubjectInput describes one subject in a request catalog.
type SubjectInput struct {
	Code    string `json:"code" validate:"required"`
	Name    string `json:"name" validate:"required"`
	Lab     bool   `json:"isLab"`
	Credits int    `json:"credits" validate:"required,min=1"`
}

// SectionInput describes one class group in a request catalog.
type SectionInput struct {
	ID      string `json:"id" validate:"required"`
	Name    string `json:"name" validate:"required"`
	Batches int    `json:"batches" validate:"min=0"`
}

// CatalogInput is the entity payload of a generation request.
type CatalogInput struct {
	Faculty  []FacultyInput `json:"faculty" validate:"required,min=1,dive"`
	Subjects []SubjectInput `json:"subjects" validate:"required,min=1,dive"`
	Sections []SectionInput `json:"sections" validate:"required,min=1,dive"`
}

// GenerateTimetableRequest starts a generation from an inline catalog.
type GenerateTimetableRequest struct {
	Catalog CatalogInput `json:"catalog"`
	Profile string       `json:"profile" validate:"omitempty,oneof=steady-state generational"`
	Seed    int64        `json:"seed"`
}

// CatalogRunRequest starts a generation from the configured catalog source.
type CatalogRunRequest struct {
	Profile string `json:"profile" validate:"omitempty,oneof=steady-state generational"`
	Seed    int64  `json:"seed"`
}

// ExportRequest selects the rendering of a finished run.
type ExportRequest struct {
	Format string `json:"format" validate:"required,oneof=csv pdf sessions"`
}

// SessionResponse is one placed contact hour.
type SessionResponse struct {
	Section     string   `json:"section"`
	SectionName string   `json:"sectionName"`
	Subject     string   `json:"subject"`
	SubjectName string   `json:"subjectName"`
	Lab         bool     `json:"isLab"`
	Faculty     []string `json:"faculty"`
	Day         string   `json:"day"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Period      string   `json:"period"`
}

// RunResultResponse summarises a finished search.
type RunResultResponse struct {
	Seed        int64             `json:"seed"`
	Hard        int               `json:"hardViolations"`
	Soft        float64           `json:"softPenalty"`
	Fitness     float64           `json:"fitness"`
	Generations int               `json:"generations"`
	Evaluations int               `json:"evaluations"`
	Repairs     int               `json:"repairs"`
	StopReason  string            `json:"stopReason"`
	DurationMs  int64             `json:"durationMs"`
	Sessions    []SessionResponse `json:"sessions,omitempty"`
}

// RunResponse exposes a generation run to clients.
type RunResponse struct {
	ID          string             `json:"id"`
	Status      string             `json:"status"`
	Source      string             `json:"source"`
	Profile     string             `json:"profile"`
	Progress    int                `json:"progress"`
	Generation  int                `json:"generation"`
	BestFitness float64            `json:"bestFitness"`
	Attempts    int                `json:"attempts"`
	Error       *string            `json:"error,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	StartedAt   *time.Time         `json:"startedAt,omitempty"`
	FinishedAt  *time.Time         `json:"finishedAt,omitempty"`
	Result      *RunResultResponse `json:"result,omitempty"`
}

// CheckResponse is one line of a constraint report.
type CheckResponse struct {
	Name  string  `json:"name"`
	Kind  string  `json:"kind"`
	Value float64 `json:"value"`
	OK    bool    `json:"ok"`
}

// ReportResponse is the constraint report of a run.
type ReportResponse struct {
	RunID   string          `json:"runId"`
	Checks  []CheckResponse `json:"checks"`
	Hard    int             `json:"hardViolations"`
	Soft    float64         `json:"softPenalty"`
	Fitness float64         `json:"fitness"`
}

// FacultyLoadResponse is the workload line of one faculty.
type FacultyLoadResponse struct {
	FacultyID   string  `json:"facultyId"`
	Name        string  `json:"name"`
	Units       int     `json:"units"`
	Credits     float64 `json:"credits"`
	MaxCredits  int     `json:"maxCredits"`
	Utilisation float64 `json:"utilisation"`
	Overloaded  bool    `json:"overloaded"`
}

// WorkloadResponse lists the faculty loads of a run.
type WorkloadResponse struct {
	RunID   string                `json:"runId"`
	Faculty []FacultyLoadResponse `json:"faculty"`
}

// ExportResponse points at a rendered export.
type ExportResponse struct {
	RunID     string    `json:"runId"`
	Format    string    `json:"format"`
	Filename  string    `json:"filename"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
