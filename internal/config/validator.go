package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config key (e.g., "generation.max_jobs")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the list of valid log formats
func ValidLogFormats() []string {
	return []string{"text", "json"}
}

// ValidReportFormats returns the formats report templates render to
func ValidReportFormats() []string {
	return []string{"yaml", "json"}
}

// ValidExportFormats returns the formats export templates render to
func ValidExportFormats() []string {
	return []string{"csv", "geojson"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(c.Database) == "" {
		errs = append(errs, ValidationError{Field: "database", Value: c.Database, Message: "must not be empty"})
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		errs = append(errs, ValidationError{Field: "output_dir", Value: c.OutputDir, Message: "must not be empty"})
	}

	errs = append(errs, oneOf("log.level", strings.ToLower(c.Log.Level), ValidLogLevels())...)
	errs = append(errs, oneOf("log.format", strings.ToLower(c.Log.Format), ValidLogFormats())...)

	if c.Generation.MaxJobs < 0 {
		errs = append(errs, ValidationError{
			Field:   "generation.max_jobs",
			Value:   c.Generation.MaxJobs,
			Message: "must be non-negative (0 disables the quota)",
		})
	}

	if c.Directions.AverageSpeedKmh <= 0 {
		errs = append(errs, ValidationError{
			Field:   "directions.average_speed_kmh",
			Value:   c.Directions.AverageSpeedKmh,
			Message: "must be positive",
		})
	}

	errs = append(errs, oneOf("builder.formats.report", c.Builder.Formats.Report, ValidReportFormats())...)
	errs = append(errs, oneOf("builder.formats.export", c.Builder.Formats.Export, ValidExportFormats())...)

	return errs
}

func oneOf(field, value string, valid []string) []ValidationError {
	if slices.Contains(valid, value) {
		return nil
	}
	return []ValidationError{{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(valid, ", ")),
	}}
}
