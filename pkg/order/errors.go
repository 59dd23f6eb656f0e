package order

import "fmt"

// UnknownProductError means no catalog pattern matched the row.
type UnknownProductError struct {
	Row         int
	Code        string
	Description string
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("row %d: no product matches code %q description %q", e.Row, e.Code, e.Description)
}

// FrameMissingError means the row asked for a frame style the catalog has no artwork for.
type FrameMissingError struct {
	Row   int
	Slug  string
	Style string
}

func (e *FrameMissingError) Error() string {
	return fmt.Sprintf("row %d: no %s frame asset for %s", e.Row, e.Style, e.Slug)
}
