package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"daily-tracker/internal/model"
)

// SortOption orders or narrows a task listing.
type SortOption string

const (
	SortNone        SortOption = "none"
	SortTitleAsc    SortOption = "title-asc"
	SortTitleDesc   SortOption = "title-desc"
	SortCompleted   SortOption = "completed"
	SortUncompleted SortOption = "uncompleted"
)

func ParseSortOption(raw string) (SortOption, bool) {
	switch opt := SortOption(strings.ToLower(strings.TrimSpace(raw))); opt {
	case "":
		return SortNone, true
	case SortNone, SortTitleAsc, SortTitleDesc, SortCompleted, SortUncompleted:
		return opt, true
	}
	return SortNone, false
}

// Filter selects tasks for a listing. Zero values match everything.
type Filter struct {
	Category model.Category
	Query    string
	Sort     SortOption
}

// List returns the tasks matching f. Search covers text, link and description.
func (s *Session) List(f Filter) []model.Task {
	query := strings.ToLower(strings.TrimSpace(f.Query))

	s.mu.RLock()
	out := make([]model.Task, 0, len(s.st.tasks))
	for _, task := range s.st.tasks {
		if f.Category != "" && task.Category != f.Category {
			continue
		}
		if query != "" && !matches(task, query) {
			continue
		}
		out = append(out, task)
	}
	s.mu.RUnlock()

	switch f.Sort {
	case SortTitleAsc:
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Text) < strings.ToLower(out[j].Text)
		})
	case SortTitleDesc:
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Text) > strings.ToLower(out[j].Text)
		})
	case SortCompleted:
		out = keep(out, true)
	case SortUncompleted:
		out = keep(out, false)
	}
	return out
}

func matches(task model.Task, query string) bool {
	return strings.Contains(strings.ToLower(task.Text), query) ||
		strings.Contains(strings.ToLower(task.Link), query) ||
		strings.Contains(strings.ToLower(task.Description), query)
}

func keep(tasks []model.Task, completed bool) []model.Task {
	out := tasks[:0]
	for _, task := range tasks {
		if task.Completed == completed {
			out = append(out, task)
		}
	}
	return out
}

// CategoryStats summarizes one category.
type CategoryStats struct {
	Category       model.Category `json:"category"`
	Total          int            `json:"total"`
	Completed      int            `json:"completed"`
	CompletionRate int            `json:"completion_rate"`
	// Streak is the number of completed tasks right now, not a run of days.
	Streak int `json:"streak"`
}

// Stats returns one entry per category in display order.
func (s *Session) Stats() []CategoryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ComputeStats(s.st.tasks)
}

// StatsFor returns the stats of a single category.
func (s *Session) StatsFor(category model.Category) CategoryStats {
	for _, st := range s.Stats() {
		if st.Category == category {
			return st
		}
	}
	return CategoryStats{Category: category}
}

// ComputeStats counts totals and completions per category.
func ComputeStats(tasks []model.Task) []CategoryStats {
	stats := make([]CategoryStats, len(model.Categories))
	pos := make(map[model.Category]int, len(model.Categories))
	for i, c := range model.Categories {
		stats[i].Category = c
		pos[c] = i
	}
	for _, task := range tasks {
		i, ok := pos[task.Category]
		if !ok {
			continue
		}
		stats[i].Total++
		if task.Completed {
			stats[i].Completed++
		}
	}
	for i := range stats {
		if stats[i].Total > 0 {
			stats[i].CompletionRate = int(math.Round(float64(stats[i].Completed) / float64(stats[i].Total) * 100))
		}
		stats[i].Streak = stats[i].Completed
	}
	return stats
}

// Find returns a task by id, accepting any unambiguous id prefix.
func (s *Session) Find(idOrPrefix string) (model.Task, error) {
	key := strings.TrimSpace(idOrPrefix)
	if key == "" {
		return model.Task{}, fmt.Errorf("%w: empty id", ErrTaskNotFound)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if task, err := s.lookupLocked(key); err == nil {
		return task, nil
	}
	var found []model.Task
	for _, task := range s.st.tasks {
		if strings.HasPrefix(task.ID, key) {
			found = append(found, task)
		}
	}
	switch len(found) {
	case 0:
		return model.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, key)
	case 1:
		return found[0], nil
	default:
		return model.Task{}, fmt.Errorf("%w: %s matches %d tasks", ErrAmbiguousID, key, len(found))
	}
}
