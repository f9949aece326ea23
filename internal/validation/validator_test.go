// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loginForm struct {
	Username string `validate:"required,min=3,max=64"`
	Password string `validate:"required,min=6,max=128"`
}

func TestValidateStruct_Valid(t *testing.T) {
	err := ValidateStruct(&loginForm{Username: "operator", Password: "secret1"})
	assert.Nil(t, err)
}

func TestValidateStruct_ShortPassword(t *testing.T) {
	err := ValidateStruct(&loginForm{Username: "operator", Password: "abc"})
	require.NotNil(t, err)
	require.Len(t, err.Errors(), 1)

	fieldErr := err.Errors()[0]
	assert.Equal(t, "Password", fieldErr.Field())
	assert.Equal(t, "min", fieldErr.Tag())
	assert.Equal(t, "Password must be at least 6 characters", fieldErr.Error())
}

func TestValidateStruct_MultipleFailures(t *testing.T) {
	err := ValidateStruct(&loginForm{})
	require.NotNil(t, err)
	assert.Len(t, err.Errors(), 2)
	assert.Contains(t, err.Error(), "Username is required")
	assert.Contains(t, err.Error(), "Password is required")
}

func TestValidateStruct_Fields(t *testing.T) {
	err := ValidateStruct(&loginForm{Username: "op", Password: "secret1"})
	require.NotNil(t, err)

	fields := err.Fields()
	require.Len(t, fields, 1)
	assert.Equal(t, "Username", fields[0]["field"])
	assert.Equal(t, "min", fields[0]["tag"])
}

func TestClockTime(t *testing.T) {
	type schedule struct {
		Start string `validate:"required,clocktime"`
	}

	valid := []string{"00:00", "08:30", "23:59"}
	for _, s := range valid {
		assert.Nil(t, ValidateStruct(&schedule{Start: s}), "expected %q to validate", s)
	}

	invalid := []string{"24:00", "12:60", "9:30", "0930", "ab:cd", "12-30"}
	for _, s := range invalid {
		err := ValidateStruct(&schedule{Start: s})
		require.NotNil(t, err, "expected %q to fail", s)
		assert.Equal(t, "clocktime", err.Errors()[0].Tag())
	}
}

func TestGetValidator_Singleton(t *testing.T) {
	assert.Same(t, GetValidator(), GetValidator())
}
