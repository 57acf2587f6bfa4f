package momo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		code int
		want Outcome
	}{
		{0, OutcomeSuccess},
		{1000, OutcomePending},
		{7000, OutcomePending},
		{7002, OutcomePending},
		{9000, OutcomePending},
		{1006, OutcomeFailed},
		{1001, OutcomeFailed},
		{99, OutcomeFailed},
		{123456, OutcomeFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.code), "code %d", tt.code)
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Successful", Describe(0))
	assert.Equal(t, "User denied the payment", Describe(1006))
	assert.Equal(t, "unrecognized result code 31337", Describe(31337))
}
