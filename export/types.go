// Package export implements splitting of SyteLine "Forms and Objects"
// XML export documents into individual per-record files.
package export

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// Mapping pairs record tag with the tag of its container element, for
// example {Form Forms}. Containers are direct children of the export root,
// records are direct children of their container.
type Mapping struct {
	Item      string
	Container string
}

// ExclusionRule drops records based on a nested field value: record is
// excluded when its direct child element Field has trimmed text equal to
// one of Values.
type ExclusionRule struct {
	Field  string
	Values []string
}

// Excludes evaluates the rule against a record element. On match it returns
// the triggering value and true.
func (r ExclusionRule) Excludes(item *etree.Element) (string, bool) {
	if r.Field == "" {
		return "", false
	}
	el := item.SelectElement(r.Field)
	if el == nil {
		return "", false
	}
	value := strings.TrimSpace(el.Text())
	if value == "" {
		return "", false
	}
	for _, v := range r.Values {
		if value == v {
			return value, true
		}
	}
	return "", false
}

// DirNaming selects how per-type output subdirectories are named.
type DirNaming int

const (
	DirNamingItem DirNaming = iota
	DirNamingContainer
)

func ParseDirNaming(raw string) (DirNaming, error) {
	switch raw {
	case "item":
		return DirNamingItem, nil
	case "container":
		return DirNamingContainer, nil
	default:
		return DirNamingItem, fmt.Errorf("unknown directory naming %q", raw)
	}
}

// CollisionPolicy selects behavior when two records map to the same file
// name after sanitization.
type CollisionPolicy int

const (
	CollisionOverwrite CollisionPolicy = iota
	CollisionSuffix
	CollisionSkip
	CollisionFail
)

func ParseCollisionPolicy(raw string) (CollisionPolicy, error) {
	switch raw {
	case "overwrite":
		return CollisionOverwrite, nil
	case "suffix":
		return CollisionSuffix, nil
	case "skip":
		return CollisionSkip, nil
	case "fail":
		return CollisionFail, nil
	default:
		return CollisionOverwrite, fmt.Errorf("unknown collision policy %q", raw)
	}
}

// Options controls a single Split call.
type Options struct {
	// Mappings to process, in order. Required, must not be empty.
	Mappings []Mapping
	// Exclusions are keyed by container tag.
	Exclusions map[string]ExclusionRule
	// NameAttr is the attribute used to derive record file names,
	// "Name" when empty.
	NameAttr string
	// DirNaming selects per-type subdirectory naming.
	DirNaming DirNaming
	// OnCollision selects behavior on sanitized file name collision.
	OnCollision CollisionPolicy
	// Transliterate record names to ASCII slugs before sanitization.
	Transliterate bool
	// OnEvent, when set, receives every event as it is emitted.
	OnEvent func(Event)
}

type EventKind int

const (
	EventCreated EventKind = iota
	EventContainerNotFound
	EventNoItemsFound
	EventSkipped
	EventWriteError
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventContainerNotFound:
		return "container not found"
	case EventNoItemsFound:
		return "no items found"
	case EventSkipped:
		return "skipped"
	case EventWriteError:
		return "write error"
	default:
		return "unknown"
	}
}

// Event describes a single outcome during a split run. Fields are filled
// depending on Kind: Created carries Path, Skipped carries Name, Reason and
// possibly Value, WriteError carries Name and Err.
type Event struct {
	Kind      EventKind
	Item      string
	Container string
	Name      string
	Reason    string
	Value     string
	Path      string
	Err       error
}

// Report aggregates all events emitted during one Split call.
type Report struct {
	Events  []Event
	Created int
	Skipped int
	Errors  int
}

func (r *Report) add(opts *Options, ev Event) {
	switch ev.Kind {
	case EventCreated:
		r.Created++
	case EventSkipped:
		r.Skipped++
	case EventWriteError:
		r.Errors++
	}
	r.Events = append(r.Events, ev)
	if opts.OnEvent != nil {
		opts.OnEvent(ev)
	}
}
