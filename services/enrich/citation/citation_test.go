// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package citation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func fixedValidator(opts ...Option) *Validator {
	opts = append([]Option{WithNow(func() time.Time { return fixedNow })}, opts...)
	return New(opts...)
}

// TestValidateMissingURL verifies empty and blank URLs are rejected.
func TestValidateMissingURL(t *testing.T) {
	v := fixedValidator()

	for _, url := range []string{"", "   ", "\t"} {
		err := v.Validate(url, fixedNow, "api")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingSource)
	}
}

// TestValidateZeroDate verifies an unset source date is rejected.
func TestValidateZeroDate(t *testing.T) {
	v := fixedValidator()
	err := v.Validate("https://example.com/companies/acme", time.Time{}, "api")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingSource)
}

// TestValidateFreshnessBoundary verifies the boundary is inclusive:
// exactly at the threshold passes, one unit past fails.
func TestValidateFreshnessBoundary(t *testing.T) {
	v := fixedValidator()

	t.Run("default threshold", func(t *testing.T) {
		atBoundary := fixedNow.Add(-DefaultFreshness)
		assert.NoError(t, v.Validate("https://example.com", atBoundary, "api"))

		pastBoundary := atBoundary.Add(-time.Nanosecond)
		err := v.Validate("https://example.com", pastBoundary, "api")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrStaleSource)
	})

	t.Run("traffic override", func(t *testing.T) {
		atBoundary := fixedNow.Add(-30 * 24 * time.Hour)
		assert.NoError(t, v.Validate("https://example.com/traffic", atBoundary, "traffic"))

		err := v.Validate("https://example.com/traffic", atBoundary.Add(-time.Nanosecond), "traffic")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrStaleSource)
	})
}

// TestValidateFreshSource verifies the happy path.
func TestValidateFreshSource(t *testing.T) {
	v := fixedValidator()
	assert.NoError(t, v.Validate("https://example.com", fixedNow.Add(-time.Hour), "api"))
}

// TestThresholdOverrides verifies per-type thresholds resolve correctly.
func TestThresholdOverrides(t *testing.T) {
	v := fixedValidator(WithThreshold("funding", 90*24*time.Hour))

	assert.Equal(t, DefaultFreshness, v.Threshold("api"))
	assert.Equal(t, 30*24*time.Hour, v.Threshold("traffic"))
	assert.Equal(t, 90*24*time.Hour, v.Threshold("funding"))
}
