//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoETL.
//
// GoETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoETL. If not, see https://www.gnu.org/licenses/.

// Package validators checks the quality of produced datasets before a
// migration is reported as done.
package validators

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/UrsicDX/gridetl/core"
	"github.com/UrsicDX/gridetl/filter"
	"github.com/UrsicDX/gridetl/geo"
)

// ValidationError names the dataset and the check that failed.
type ValidationError struct {
	Dataset string
	Check   string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Dataset == "" {
		return fmt.Sprintf("validation %s: %v", e.Check, e.Err)
	}
	return fmt.Sprintf("validation %s %s: %v", e.Dataset, e.Check, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// DataQualityValidator checks record counts, field presence, null rates,
// per-field rules and identifier uniqueness.
type DataQualityValidator struct {
	MinRecords       int                                 // Minimum number of records required
	MaxRecords       int                                 // Maximum number of records allowed (0 = unlimited)
	MaxNullRate      float64                             // Maximum allowed null rate (0.0-1.0)
	NullRateFields   []string                            // Fields the null rate applies to, all when empty
	RequiredFields   []string                            // Fields that must be present in all records
	ForbiddenFields  []string                            // Fields that must not be present
	UniqueFields     []string                            // Fields whose values must not repeat
	FieldValidators  map[string]FieldValidator           // Per-field validation rules
	CustomValidators []func([]core.Record) (bool, error) // Custom validation functions
	RecordFilters    []RecordFilter                      // Predicates a share of records must satisfy
}

// RecordFilter requires at least MinRate of the records to pass Filter.
type RecordFilter struct {
	Name    string
	Filter  core.Filter
	MinRate float64
}

// FieldValidator defines validation rules for individual fields
type FieldValidator struct {
	DataType      FieldDataType                   // Expected data type
	Pattern       *regexp.Regexp                  // Regex pattern for string fields
	MinValue      interface{}                     // Minimum value (for numeric fields)
	MaxValue      interface{}                     // Maximum value (for numeric fields)
	AllowedValues []interface{}                   // Whitelist of allowed values
	CustomFunc    func(interface{}) (bool, error) // Custom validation function
}

// FieldDataType represents expected data types for validation
type FieldDataType string

const (
	FieldTypeString   FieldDataType = "string"
	FieldTypeInt      FieldDataType = "int"
	FieldTypeFloat    FieldDataType = "float"
	FieldTypeNumber   FieldDataType = "number"
	FieldTypeBool     FieldDataType = "bool"
	FieldTypeJSON     FieldDataType = "json"
	FieldTypeGeometry FieldDataType = "geometry"
	FieldTypeURL      FieldDataType = "url"
	FieldTypeAny      FieldDataType = "any"
)

// Validate runs every check on ds and returns the first failure.
func (dqv *DataQualityValidator) Validate(ctx context.Context, name string, ds *core.Dataset) error {
	fail := func(check string, err error) error {
		return &ValidationError{Dataset: name, Check: check, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return fail("context", err)
	}

	var records []core.Record
	if ds != nil {
		records = ds.Records
	}
	recordCount := len(records)

	if recordCount < dqv.MinRecords {
		return fail("min_records", fmt.Errorf("insufficient records: got %d, need at least %d", recordCount, dqv.MinRecords))
	}
	if dqv.MaxRecords > 0 && recordCount > dqv.MaxRecords {
		return fail("max_records", fmt.Errorf("too many records: got %d, maximum allowed %d", recordCount, dqv.MaxRecords))
	}
	if recordCount == 0 {
		return nil
	}

	if err := dqv.validateFieldPresence(records); err != nil {
		return fail("field_presence", err)
	}
	if err := dqv.validateNullRates(records); err != nil {
		return fail("null_rate", err)
	}
	if err := dqv.validateUnique(records); err != nil {
		return fail("unique", err)
	}
	if err := dqv.validateFieldValues(records); err != nil {
		return fail("field_value", err)
	}

	for _, rf := range dqv.RecordFilters {
		rate, err := filter.Rate(ctx, ds, rf.Filter)
		if err != nil {
			return fail("record_filter", fmt.Errorf("%s: %w", rf.Name, err))
		}
		if rate < rf.MinRate {
			return fail("record_filter", fmt.Errorf("%s: %.1f%% of records pass, need %.1f%%", rf.Name, rate*100, rf.MinRate*100))
		}
	}

	for i, validator := range dqv.CustomValidators {
		valid, err := validator(records)
		if err != nil {
			return fail("custom", fmt.Errorf("custom validator %d failed: %w", i, err))
		}
		if !valid {
			return fail("custom", fmt.Errorf("custom validator %d failed validation", i))
		}
	}
	return nil
}

// validateFieldPresence checks for required and forbidden fields
func (dqv *DataQualityValidator) validateFieldPresence(records []core.Record) error {
	if len(dqv.RequiredFields) == 0 && len(dqv.ForbiddenFields) == 0 {
		return nil
	}

	for recordIdx, record := range records {
		for _, field := range dqv.RequiredFields {
			if _, exists := record[field]; !exists {
				return fmt.Errorf("record %d missing required field: %s", recordIdx, field)
			}
		}
		for _, field := range dqv.ForbiddenFields {
			if _, exists := record[field]; exists {
				return fmt.Errorf("record %d contains forbidden field: %s", recordIdx, field)
			}
		}
	}
	return nil
}

// validateNullRates checks null value rates of the configured fields, or of
// every field seen when none are configured.
func (dqv *DataQualityValidator) validateNullRates(records []core.Record) error {
	if dqv.MaxNullRate <= 0 {
		return nil
	}

	fields := dqv.NullRateFields
	if len(fields) == 0 {
		seen := make(map[string]bool)
		for _, record := range records {
			for field := range record {
				if !seen[field] {
					seen[field] = true
					fields = append(fields, field)
				}
			}
		}
	}

	for _, field := range fields {
		nullCount := 0
		for _, record := range records {
			if value, exists := record[field]; !exists || value == nil {
				nullCount++
			}
		}
		nullRate := float64(nullCount) / float64(len(records))
		if nullRate > dqv.MaxNullRate {
			return fmt.Errorf("field %s has null rate %.2f, exceeds maximum %.2f", field, nullRate, dqv.MaxNullRate)
		}
	}
	return nil
}

// validateUnique checks that identifier fields do not repeat.
func (dqv *DataQualityValidator) validateUnique(records []core.Record) error {
	for _, field := range dqv.UniqueFields {
		seen := make(map[string]int, len(records))
		for recordIdx, record := range records {
			value := record[field]
			if value == nil {
				continue
			}
			key := fmt.Sprint(value)
			if first, dup := seen[key]; dup {
				return fmt.Errorf("field %s value %v in record %d repeats record %d", field, value, recordIdx, first)
			}
			seen[key] = recordIdx
		}
	}
	return nil
}

// validateFieldValues validates individual field values using field validators
func (dqv *DataQualityValidator) validateFieldValues(records []core.Record) error {
	if len(dqv.FieldValidators) == 0 {
		return nil
	}

	for recordIdx, record := range records {
		for fieldName, validator := range dqv.FieldValidators {
			value, exists := record[fieldName]
			if !exists {
				continue // handled by required field validation
			}
			if err := dqv.validateSingleFieldValue(fieldName, value, validator, recordIdx); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateSingleFieldValue validates a single field value against its validator
func (dqv *DataQualityValidator) validateSingleFieldValue(fieldName string, value interface{}, validator FieldValidator, recordIdx int) error {
	if value == nil {
		return nil // Null values handled by null rate validation
	}

	if !dqv.validateDataType(value, validator.DataType) {
		return fmt.Errorf("record %d field %s has invalid type %T, expected %s",
			recordIdx, fieldName, value, validator.DataType)
	}

	if validator.Pattern != nil {
		if str, ok := value.(string); ok {
			if !validator.Pattern.MatchString(str) {
				return fmt.Errorf("record %d field %s value '%s' does not match pattern",
					recordIdx, fieldName, str)
			}
		}
	}

	if err := dqv.validateRange(value, validator.MinValue, validator.MaxValue, fieldName, recordIdx); err != nil {
		return err
	}

	if len(validator.AllowedValues) > 0 {
		valid := false
		for _, allowedValue := range validator.AllowedValues {
			if value == allowedValue {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("record %d field %s value '%v' not in allowed values",
				recordIdx, fieldName, value)
		}
	}

	if validator.CustomFunc != nil {
		valid, err := validator.CustomFunc(value)
		if err != nil {
			return fmt.Errorf("record %d field %s custom validation failed: %w",
				recordIdx, fieldName, err)
		}
		if !valid {
			return fmt.Errorf("record %d field %s failed custom validation", recordIdx, fieldName)
		}
	}
	return nil
}

// validateDataType checks if a value matches the expected data type
func (dqv *DataQualityValidator) validateDataType(value interface{}, expectedType FieldDataType) bool {
	switch expectedType {
	case FieldTypeAny, "":
		return true
	case FieldTypeString:
		_, ok := value.(string)
		return ok
	case FieldTypeInt:
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		}
		return false
	case FieldTypeFloat:
		switch value.(type) {
		case float32, float64:
			return true
		}
		return false
	case FieldTypeNumber:
		_, ok := dqv.toFloat64(value)
		return ok
	case FieldTypeBool:
		_, ok := value.(bool)
		return ok
	case FieldTypeJSON:
		str, ok := value.(string)
		return ok && strings.HasPrefix(strings.TrimSpace(str), "{")
	case FieldTypeGeometry:
		g, err := geo.AsGeometry(value)
		return err == nil && g != nil
	case FieldTypeURL:
		if str, ok := value.(string); ok {
			return strings.HasPrefix(str, "http://") || strings.HasPrefix(str, "https://")
		}
		return false
	default:
		return true // Unknown types pass validation
	}
}

// validateRange validates numeric ranges
func (dqv *DataQualityValidator) validateRange(value, minValue, maxValue interface{}, fieldName string, recordIdx int) error {
	if minValue == nil && maxValue == nil {
		return nil
	}

	val, ok := dqv.toFloat64(value)
	if !ok {
		return nil // Not numeric, skip range validation
	}

	if minValue != nil {
		if lo, ok := dqv.toFloat64(minValue); ok && val < lo {
			return fmt.Errorf("record %d field %s value %v below minimum %v",
				recordIdx, fieldName, value, minValue)
		}
	}
	if maxValue != nil {
		if hi, ok := dqv.toFloat64(maxValue); ok && val > hi {
			return fmt.Errorf("record %d field %s value %v above maximum %v",
				recordIdx, fieldName, value, maxValue)
		}
	}
	return nil
}

// toFloat64 converts numeric types to float64 for comparison
func (dqv *DataQualityValidator) toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// NewDataQualityValidator creates a basic data quality validator
func NewDataQualityValidator(minRecords int, requiredFields []string) *DataQualityValidator {
	return &DataQualityValidator{
		MinRecords:      minRecords,
		RequiredFields:  requiredFields,
		FieldValidators: make(map[string]FieldValidator),
	}
}

// DataQualityOption is a functional option for configuring DataQualityValidator
type DataQualityOption func(*DataQualityValidator)

// WithMaxRecords sets the maximum record count
func WithMaxRecords(limit int) DataQualityOption {
	return func(dqv *DataQualityValidator) {
		dqv.MaxRecords = limit
	}
}

// WithMaxNullRate sets the maximum null value rate of fields, or of every
// field when none are named.
func WithMaxNullRate(rate float64, fields ...string) DataQualityOption {
	return func(dqv *DataQualityValidator) {
		dqv.MaxNullRate = rate
		dqv.NullRateFields = fields
	}
}

// WithForbiddenFields sets fields that must not be present
func WithForbiddenFields(fields ...string) DataQualityOption {
	return func(dqv *DataQualityValidator) {
		dqv.ForbiddenFields = fields
	}
}

// WithUniqueFields sets identifier fields whose values must not repeat.
func WithUniqueFields(fields ...string) DataQualityOption {
	return func(dqv *DataQualityValidator) {
		dqv.UniqueFields = fields
	}
}

// WithFieldValidator adds a field-specific validator
func WithFieldValidator(fieldName string, validator FieldValidator) DataQualityOption {
	return func(dqv *DataQualityValidator) {
		if dqv.FieldValidators == nil {
			dqv.FieldValidators = make(map[string]FieldValidator)
		}
		dqv.FieldValidators[fieldName] = validator
	}
}

// WithCustomValidator adds a custom validation function
func WithCustomValidator(validator func([]core.Record) (bool, error)) DataQualityOption {
	return func(dqv *DataQualityValidator) {
		dqv.CustomValidators = append(dqv.CustomValidators, validator)
	}
}

// WithRecordFilter requires at least minRate (0.0-1.0) of the records to pass f.
func WithRecordFilter(name string, f core.Filter, minRate float64) DataQualityOption {
	return func(dqv *DataQualityValidator) {
		dqv.RecordFilters = append(dqv.RecordFilters, RecordFilter{Name: name, Filter: f, MinRate: minRate})
	}
}

// NewConfigurableDataQualityValidator creates a validator with functional options
func NewConfigurableDataQualityValidator(minRecords int, requiredFields []string, options ...DataQualityOption) *DataQualityValidator {
	dqv := NewDataQualityValidator(minRecords, requiredFields)
	for _, option := range options {
		option(dqv)
	}
	return dqv
}
