package entity

import (
	"fmt"
	"strings"
	"time"
)

// LinkingState is the lifecycle state of a linking job.
type LinkingState string

const (
	LinkingProcessing LinkingState = "PROCESSING"
	LinkingCompleted  LinkingState = "COMPLETED"
	LinkingFailed     LinkingState = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s LinkingState) Terminal() bool {
	return s == LinkingCompleted || s == LinkingFailed
}

// DefaultLinkingMessage is the status message of a job that has not finished yet.
const DefaultLinkingMessage = "Still working ..."

// BabelNetID names the BabelNet linking target, which has no local dictionary behind it.
const BabelNetID = "babelnet"

// LinkType is the relation between two linked senses.
type LinkType string

const (
	LinkExact    LinkType = "exact"
	LinkBroader  LinkType = "broader"
	LinkNarrower LinkType = "narrower"
	LinkRelated  LinkType = "related"
)

// LinkingSource names one side of a linking job: a local dictionary id, or a dictionary id on a
// remote endpoint. Entries optionally restricts the side to a subset of entry ids.
type LinkingSource struct {
	Endpoint string   `json:"endpoint,omitempty"`
	ID       string   `json:"id"`
	Entries  []string `json:"entries,omitempty"`
	APIKey   string   `json:"apiKey,omitempty"`
}

// Remote reports whether the side must be fetched over the network.
func (s LinkingSource) Remote() bool {
	return strings.TrimSpace(s.Endpoint) != ""
}

// Validate checks the shape of the side; existence of local dictionaries is checked by the caller.
func (s LinkingSource) Validate(field string) error {
	if strings.TrimSpace(s.ID) == "" {
		return &ValidationError{Field: field + ".id", Msg: "dictionary id is required"}
	}
	if !s.Remote() && s.ID != BabelNetID && !ValidID(s.ID) {
		return &ValidationError{Field: field + ".id", Msg: fmt.Sprintf("malformed dictionary id %q", s.ID)}
	}
	return nil
}

// SenseLink is one scored correspondence between a source and a target sense.
type SenseLink struct {
	SourceEntry string   `json:"source_entry,omitempty"`
	SourceSense string   `json:"source_sense"`
	TargetEntry string   `json:"target_entry,omitempty"`
	TargetSense string   `json:"target_sense"`
	Type        LinkType `json:"type"`
	Score       float64  `json:"score"`
}

// LinkingOneResult groups the links between one source entry and one target entry.
type LinkingOneResult struct {
	SourceEntry string      `json:"source_entry"`
	TargetEntry string      `json:"target_entry"`
	Linking     []SenseLink `json:"linking"`
}

// GroupLinks groups links by (source entry, target entry) in first-seen order.
func GroupLinks(links []SenseLink) []LinkingOneResult {
	out := []LinkingOneResult{}
	index := map[[2]string]int{}
	for _, l := range links {
		key := [2]string{l.SourceEntry, l.TargetEntry}
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, LinkingOneResult{SourceEntry: l.SourceEntry, TargetEntry: l.TargetEntry})
		}
		out[i].Linking = append(out[i].Linking, l)
	}
	return out
}

// LinkingJob is one asynchronous alignment request.
type LinkingJob struct {
	ID        string         `json:"id"`
	Source    LinkingSource  `json:"source"`
	Target    LinkingSource  `json:"target"`
	Config    map[string]any `json:"config,omitempty"`
	State     LinkingState   `json:"state"`
	Message   string         `json:"message"`
	Result    []SenseLink    `json:"result,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// LinkingStatus is the externally visible progress of a job.
type LinkingStatus struct {
	State   LinkingState `json:"state"`
	Message string       `json:"message"`
}

// Status returns the job's state and message.
func (j *LinkingJob) Status() LinkingStatus {
	return LinkingStatus{State: j.State, Message: j.Message}
}
