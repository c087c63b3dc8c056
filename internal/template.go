package internal

import "fmt"

// Validate enforces the shape of the tagged union: spreadsheet templates
// carry row offsets, delimited ones must not.
func (t FormatTemplate) Validate() error {
	switch t.SourceType {
	case SourceSpreadsheet:
		if t.Layout == nil {
			return fmt.Errorf("spreadsheet template requires row offsets")
		}
		if t.Layout.HeaderRowIndex < 0 || t.Layout.DataStartRowIndex < 0 {
			return fmt.Errorf("row offsets must be non-negative")
		}
	case SourceDelimited:
		if t.Layout != nil {
			return fmt.Errorf("delimited-text template does not take row offsets")
		}
	default:
		return fmt.Errorf("unknown source type: %s", t.SourceType)
	}
	if len(t.Mapping) == 0 {
		return fmt.Errorf("column mapping is empty")
	}
	return nil
}
