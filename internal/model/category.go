package model

import "strings"

// Category tags a task with one of the four tracker lists.
type Category string

const (
	CategoryDaily    Category = "daily"
	CategoryNote     Category = "note"
	CategoryWaitlist Category = "waitlist"
	CategoryTestnet  Category = "testnet"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryDaily, CategoryNote, CategoryWaitlist, CategoryTestnet}

// ParseCategory accepts the wire name in any case.
func ParseCategory(raw string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	return c, c.Valid()
}

func (c Category) Valid() bool {
	switch c {
	case CategoryDaily, CategoryNote, CategoryWaitlist, CategoryTestnet:
		return true
	}
	return false
}

// ResetEligible reports whether the daily reset clears completion for this category.
func (c Category) ResetEligible() bool {
	return c == CategoryDaily
}

// CanToggle reports whether a user may flip completion of a task in this category.
// Daily tasks stay done until the next reset.
func (c Category) CanToggle(completed bool) bool {
	switch c {
	case CategoryNote:
		return true
	case CategoryDaily:
		return !completed
	default:
		return false
	}
}

// NeedsConfirmation reports whether completing goes through request/confirm.
func (c Category) NeedsConfirmation() bool {
	return c == CategoryDaily
}

// Status is an informational lifecycle tag.
type Status string

const (
	StatusEarly   Status = "early"
	StatusOngoing Status = "ongoing"
	StatusEnded   Status = "ended"
)

func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.Valid()
}

func (s Status) Valid() bool {
	switch s {
	case StatusEarly, StatusOngoing, StatusEnded:
		return true
	}
	return false
}
