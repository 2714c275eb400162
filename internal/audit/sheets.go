package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RowAppender appends rows to a worksheet. *sheets.Service satisfies it.
type RowAppender interface {
	AppendRows(ctx context.Context, sheetName string, headers []string, rows [][]interface{}) error
}

var sheetHeaders = []string{"Time", "Event ID", "Action", "Entity Type", "Entity ID", "Description", "Metadata"}

// SheetsSink mirrors events to a spreadsheet for non-technical reviewers.
type SheetsSink struct {
	appender  RowAppender
	worksheet string
}

// NewSheetsSink creates a spreadsheet backend writing to worksheet.
func NewSheetsSink(appender RowAppender, worksheet string) *SheetsSink {
	if worksheet == "" {
		worksheet = "Audit"
	}
	return &SheetsSink{appender: appender, worksheet: worksheet}
}

// Write implements Backend.
func (s *SheetsSink) Write(ctx context.Context, e Event) error {
	meta := ""
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("SheetsSink.Write: encode metadata: %w", err)
		}
		meta = string(raw)
	}
	row := []interface{}{
		e.OccurredAt.UTC().Format(time.RFC3339),
		e.ID,
		e.Action,
		e.EntityType,
		e.EntityID,
		e.Description,
		meta,
	}
	if err := s.appender.AppendRows(ctx, s.worksheet, sheetHeaders, [][]interface{}{row}); err != nil {
		return fmt.Errorf("SheetsSink.Write: %w", err)
	}
	return nil
}
