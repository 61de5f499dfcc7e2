package entity

import "time"

// URLStatus is the per-URL state inside a batch.
type URLStatus string

const (
	URLPending         URLStatus = "pending"
	URLInProgress      URLStatus = "in_progress"
	URLPassed          URLStatus = "passed"
	URLFailed          URLStatus = "failed"
	URLCrashed         URLStatus = "crashed"
	URLSkippedRedirect URLStatus = "skipped_redirect"
)

// IsTerminal reports whether the URL needs no further work.
func (s URLStatus) IsTerminal() bool {
	switch s {
	case URLPassed, URLFailed, URLCrashed, URLSkippedRedirect:
		return true
	}
	return false
}

// QueueState is the persisted progress of a batch run.
type QueueState struct {
	ID        string               `json:"id" yaml:"id"`
	Homepage  string               `json:"homepage,omitempty" yaml:"homepage,omitempty"`
	Level     Level                `json:"level" yaml:"level"`
	Total     int                  `json:"total" yaml:"total"`
	Processed int                  `json:"processed" yaml:"processed"`
	Order     []string             `json:"order" yaml:"order"`
	URLs      map[string]URLStatus `json:"urls" yaml:"urls"`
	Sampling  *Sampling            `json:"sampling,omitempty" yaml:"sampling,omitempty"`
	CreatedAt time.Time            `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time            `json:"updated_at" yaml:"updated_at"`
}

// Sampling is the selection progress of a sampled batch. Candidates holds
// the URLs not probed yet, in the order they will be tried.
type Sampling struct {
	Target     int      `json:"target" yaml:"target"`
	Selected   int      `json:"selected" yaml:"selected"`
	Candidates []string `json:"candidates,omitempty" yaml:"candidates,omitempty"`
}

// Open reports whether more pages could still be selected.
func (s *Sampling) Open() bool {
	return s != nil && s.Selected < s.Target && len(s.Candidates) > 0
}

// NewQueueState creates a state with every URL pending. Duplicates are dropped.
func NewQueueState(id, homepage string, level Level, urls []string, now time.Time) *QueueState {
	s := &QueueState{
		ID:        id,
		Homepage:  homepage,
		Level:     level,
		URLs:      make(map[string]URLStatus, len(urls)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, u := range urls {
		s.Add(u)
	}
	return s
}

// Add registers a URL as pending. It is a no-op for known URLs.
func (s *QueueState) Add(url string) {
	if _, ok := s.URLs[url]; ok {
		return
	}
	s.URLs[url] = URLPending
	s.Order = append(s.Order, url)
	s.Total = len(s.Order)
}

// Set records a status transition and keeps Processed in sync.
func (s *QueueState) Set(url string, status URLStatus, now time.Time) {
	if _, ok := s.URLs[url]; !ok {
		s.Add(url)
	}
	prev := s.URLs[url]
	s.URLs[url] = status
	if !prev.IsTerminal() && status.IsTerminal() {
		s.Processed++
	} else if prev.IsTerminal() && !status.IsTerminal() {
		s.Processed--
	}
	s.UpdatedAt = now
}

// Pending returns URLs that still need work, in submission order.
func (s *QueueState) Pending() []string {
	var out []string
	for _, u := range s.Order {
		if !s.URLs[u].IsTerminal() {
			out = append(out, u)
		}
	}
	return out
}

// Clone returns a deep copy safe to hand to a store while the original keeps changing.
func (s *QueueState) Clone() *QueueState {
	c := *s
	c.Order = append([]string(nil), s.Order...)
	c.URLs = make(map[string]URLStatus, len(s.URLs))
	for k, v := range s.URLs {
		c.URLs[k] = v
	}
	if s.Sampling != nil {
		sp := *s.Sampling
		sp.Candidates = append([]string(nil), s.Sampling.Candidates...)
		c.Sampling = &sp
	}
	return &c
}

func (s *QueueState) Summary() StateSummary {
	sum := StateSummary{
		ID:        s.ID,
		Total:     s.Total,
		Processed: s.Processed,
		UpdatedAt: s.UpdatedAt,
	}
	for _, st := range s.URLs {
		switch st {
		case URLPassed:
			sum.Passed++
		case URLFailed:
			sum.Failed++
		case URLCrashed:
			sum.Crashed++
		case URLSkippedRedirect:
			sum.Skipped++
		default:
			sum.Pending++
		}
	}
	return sum
}

// StateSummary is the listable view of a QueueState.
type StateSummary struct {
	ID        string    `json:"id" yaml:"id"`
	Total     int       `json:"total" yaml:"total"`
	Processed int       `json:"processed" yaml:"processed"`
	Pending   int       `json:"pending" yaml:"pending"`
	Passed    int       `json:"passed" yaml:"passed"`
	Failed    int       `json:"failed" yaml:"failed"`
	Crashed   int       `json:"crashed" yaml:"crashed"`
	Skipped   int       `json:"skipped_redirect" yaml:"skipped_redirect"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Batch converts the summary into batch outcome counts.
func (s StateSummary) Batch() BatchSummary {
	return BatchSummary{
		Total:   s.Total,
		Passed:  s.Passed,
		Failed:  s.Failed,
		Crashed: s.Crashed,
		Skipped: s.Skipped,
		Pending: s.Pending,
	}
}
