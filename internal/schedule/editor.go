package schedule

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"slotline/internal/models"
	"slotline/internal/timeutil"
)

// GranularityMinutes is the boundary availability blocks must align to.
const GranularityMinutes = 30

// ValidationError reports a rejected block set.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// BlockStore persists whole-week block sets and templates.
type BlockStore interface {
	ReplaceWeekBlocks(ctx context.Context, staffID int64, blocks []models.WorkingHourBlock) ([]models.WorkingHourBlock, error)
	GetTemplate(ctx context.Context, id int64) (*models.ScheduleTemplate, error)
}

// Editor validates and saves recurring weekly schedules. Saves are always
// wholesale: the existing week is deleted and the new set inserted inside
// one transaction.
type Editor struct {
	store  BlockStore
	logger *zerolog.Logger
}

// NewEditor creates a schedule editor.
func NewEditor(store BlockStore, logger *zerolog.Logger) *Editor {
	return &Editor{store: store, logger: logger}
}

// ReplaceWeek validates blocks and replaces the staff member's whole week.
func (e *Editor) ReplaceWeek(ctx context.Context, staffID int64, blocks []models.WorkingHourBlock) ([]models.WorkingHourBlock, error) {
	if err := ValidateBlocks(blocks); err != nil {
		return nil, err
	}

	saved, err := e.store.ReplaceWeekBlocks(ctx, staffID, blocks)
	if err != nil {
		return nil, fmt.Errorf("replace week for staff %d: %w", staffID, err)
	}

	if e.logger != nil {
		e.logger.Info().Int64("staff_id", staffID).Int("blocks", len(saved)).Msg("weekly schedule replaced")
	}
	return saved, nil
}

// ApplyTemplate replaces the staff member's week with a template's block
// set. This destroys the prior manual configuration; callers must gate it
// behind an explicit confirmation.
func (e *Editor) ApplyTemplate(ctx context.Context, staffID, templateID int64) ([]models.WorkingHourBlock, error) {
	tpl, err := e.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("load template %d: %w", templateID, err)
	}
	return e.ReplaceWeek(ctx, staffID, tpl.Blocks)
}

// ValidateBlocks checks a whole-week block set: per weekday, every block
// must have start and end set, start strictly before end, availability
// blocks aligned to the 30-minute granularity, and after sorting by start
// no block may begin before the previous one ends. Touching blocks are
// allowed.
func ValidateBlocks(blocks []models.WorkingHourBlock) error {
	byDay := make(map[int][]models.WorkingHourBlock)
	for i, b := range blocks {
		if b.DayOfWeek < 0 || b.DayOfWeek > 6 {
			return &ValidationError{
				Field:   fmt.Sprintf("blocks[%d].day_of_week", i),
				Message: fmt.Sprintf("must be 0-6, got %d", b.DayOfWeek),
			}
		}
		if b.StartTime == "" || b.EndTime == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("blocks[%d]", i),
				Message: "start and end time are required",
			}
		}
		byDay[b.DayOfWeek] = append(byDay[b.DayOfWeek], b)
	}

	for day := 0; day <= 6; day++ {
		group := byDay[day]
		if len(group) == 0 {
			continue
		}

		type span struct {
			start, end int
			block      models.WorkingHourBlock
		}
		spans := make([]span, 0, len(group))
		for _, b := range group {
			start, err := timeutil.ParseClock(b.StartTime)
			if err != nil {
				return &ValidationError{Field: "start_time", Message: err.Error()}
			}
			end, err := timeutil.ParseClock(b.EndTime)
			if err != nil {
				return &ValidationError{Field: "end_time", Message: err.Error()}
			}
			if start >= end {
				return &ValidationError{
					Field:   "end_time",
					Message: fmt.Sprintf("day %d: %s must be after %s", day, b.EndTime, b.StartTime),
				}
			}
			if !b.IsBreak && (start%GranularityMinutes != 0 || end%GranularityMinutes != 0) {
				return &ValidationError{
					Field:   "start_time",
					Message: fmt.Sprintf("day %d: %s-%s must align to %d-minute boundaries", day, b.StartTime, b.EndTime, GranularityMinutes),
				}
			}
			spans = append(spans, span{start: start, end: end, block: b})
		}

		sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
		for i := 1; i < len(spans); i++ {
			if spans[i].start < spans[i-1].end {
				return &ValidationError{
					Field: "blocks",
					Message: fmt.Sprintf("day %d: %s-%s overlaps %s-%s",
						day,
						spans[i].block.StartTime, spans[i].block.EndTime,
						spans[i-1].block.StartTime, spans[i-1].block.EndTime),
				}
			}
		}
	}
	return nil
}
