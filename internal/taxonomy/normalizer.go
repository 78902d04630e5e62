// Package taxonomy maps free-form activity labels onto the closed set of
// types the persistence layer accepts. The allow-lists here are the single
// source of truth for the tasks.task_type CHECK constraint; update them first
// whenever the database enumeration changes.
package taxonomy

import (
	"regexp"
	"strings"
)

// CanonicalType is a member of the closed type enumeration enforced by the
// backend. No free-form label is ever persisted directly.
type CanonicalType string

const (
	TypeCall        CanonicalType = "call"
	TypeEmail       CanonicalType = "email"
	TypeMeeting     CanonicalType = "meeting"
	TypeSiteVisit   CanonicalType = "site_visit"
	TypeFollowUp    CanonicalType = "follow_up"
	TypeProposal    CanonicalType = "proposal"
	TypeInvoiceSent CanonicalType = "invoice_sent"
	TypeTask        CanonicalType = "task"
	TypeActivity    CanonicalType = "activity"
)

// Kind selects which allow-list and fallback apply to a normalization.
type Kind string

const (
	// KindActivity covers tasks and logged activities.
	KindActivity Kind = "activity"
	// KindCalendar covers calendar events, which accept a narrower set and
	// default to meeting.
	KindCalendar Kind = "calendar"
)

var separators = regexp.MustCompile(`[\s\-]+`)

// synonyms is a many-to-one table keyed by the canonical lookup key. It is a
// data table on purpose: auditing and extending it never touches control flow.
var synonyms = map[string]CanonicalType{
	"call":          TypeCall,
	"phone_call":    TypeCall,
	"cold_call":     TypeCall,
	"email":         TypeEmail,
	"e_mail":        TypeEmail,
	"meeting":       TypeMeeting,
	"appointment":   TypeMeeting,
	"site_visit":    TypeSiteVisit,
	"visit":         TypeSiteVisit,
	"follow_up":     TypeFollowUp,
	"followup":      TypeFollowUp,
	"proposal":      TypeProposal,
	"quote":         TypeProposal,
	"invoice_sent":  TypeInvoiceSent,
	"invoice":       TypeInvoiceSent,
	"task":          TypeTask,
	"todo":          TypeTask,
	"activity":      TypeActivity,
	"note":          TypeActivity,
	"demo":          TypeMeeting,
	"presentation":  TypeMeeting,
	"check_in":      TypeFollowUp,
	"reminder":      TypeTask,
	"sales_call":    TypeCall,
	"video_call":    TypeCall,
	"site_survey":   TypeSiteVisit,
	"walkthrough":   TypeSiteVisit,
	"estimate":      TypeProposal,
	"billing":       TypeInvoiceSent,
	"general":       TypeActivity,
	"miscellaneous": TypeActivity,
}

var allowLists = map[Kind]map[CanonicalType]struct{}{
	KindActivity: {
		TypeCall: {}, TypeEmail: {}, TypeMeeting: {}, TypeSiteVisit: {},
		TypeFollowUp: {}, TypeProposal: {}, TypeInvoiceSent: {}, TypeTask: {},
		TypeActivity: {},
	},
	KindCalendar: {
		TypeCall: {}, TypeMeeting: {}, TypeSiteVisit: {}, TypeFollowUp: {},
		TypeTask: {},
	},
}

var fallbacks = map[Kind]CanonicalType{
	KindActivity: TypeActivity,
	KindCalendar: TypeMeeting,
}

// Fallback returns the known-safe type for a kind. It is what a caller should
// retry with when the backend rejects a type the allow-list believed valid.
func Fallback(kind Kind) CanonicalType {
	if fb, ok := fallbacks[kind]; ok {
		return fb
	}
	return TypeActivity
}

// Allowed reports whether t belongs to the allow-list for kind.
func Allowed(kind Kind, t CanonicalType) bool {
	list, ok := allowLists[kind]
	if !ok {
		return false
	}
	_, ok = list[t]
	return ok
}

// AllowList returns a copy of the enumeration accepted for kind.
func AllowList(kind Kind) []CanonicalType {
	list := allowLists[kind]
	out := make([]CanonicalType, 0, len(list))
	for t := range list {
		out = append(out, t)
	}
	return out
}

// Normalize resolves an arbitrary human-entered label to a canonical type for
// the given kind. It is total and idempotent: it never fails, and an already
// canonical value maps to itself. Unknown or empty labels resolve to the
// kind's fallback, as does any synonym whose target falls outside the kind's
// allow-list.
func Normalize(kind Kind, raw string) CanonicalType {
	key := Key(raw)
	if key == "" {
		return Fallback(kind)
	}
	resolved, ok := synonyms[key]
	if !ok {
		return Fallback(kind)
	}
	if !Allowed(kind, resolved) {
		return Fallback(kind)
	}
	return resolved
}

// Recognized reports whether the raw label maps to a synonym-table entry at
// all. Callers use it to decide whether the original label is worth
// round-tripping in a description field.
func Recognized(raw string) bool {
	_, ok := synonyms[Key(raw)]
	return ok
}

// Key builds the canonical lookup key: lower-cased, with runs of whitespace
// and hyphens collapsed to a single underscore.
func Key(raw string) string {
	trimmed := strings.TrimSpace(strings.ToLower(raw))
	if trimmed == "" {
		return ""
	}
	return separators.ReplaceAllString(trimmed, "_")
}
