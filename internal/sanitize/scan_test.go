package sanitize

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestScan_RejectsPII(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"email", "contact jane.doe@example.com about the adjustment"},
		{"dashed phone", "call 555-867-5309 tomorrow"},
		{"dotted phone", "call 555.867.5309 tomorrow"},
		{"parenthesized phone", "call (555) 867-5309 tomorrow"},
		{"e164 phone", "reach me at +15558675309"},
		{"ssn", "ssn 123-45-6789 on file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Scan(tt.value)
			assert.ErrorIs(t, err, ErrSanitizationFailure)
			// The identifier itself must not travel with the error.
			assert.NotContains(t, err.Error(), tt.value)
		})
	}
}

func TestScan_AcceptsCleanValues(t *testing.T) {
	assert.NoError(t, Scan("Patient Activation"))
	assert.NoError(t, Scan("Office setup and onboarding"))
	// Random tokens must never false-positive.
	for i := 0; i < 50; i++ {
		assert.NoError(t, Scan(uuid.NewString()))
	}
	assert.NoError(t, Scan("1934713383150489600"))
}

func TestScan_WalksNestedStructures(t *testing.T) {
	type inner struct {
		Note string
	}
	type outer struct {
		Items []inner
		Meta  map[string]string
		Ptr   *inner
	}

	clean := outer{
		Items: []inner{{Note: "ok"}},
		Meta:  map[string]string{"kind": "monthly"},
		Ptr:   &inner{Note: "fine"},
	}
	assert.NoError(t, Scan(clean))

	dirtySlice := outer{Items: []inner{{Note: "mail me at a@b.co"}}}
	assert.ErrorIs(t, Scan(dirtySlice), ErrSanitizationFailure)

	dirtyMap := outer{Meta: map[string]string{"contact": "555-867-5309"}}
	assert.ErrorIs(t, Scan(dirtyMap), ErrSanitizationFailure)

	dirtyPtr := outer{Ptr: &inner{Note: "123-45-6789"}}
	assert.ErrorIs(t, Scan(dirtyPtr), ErrSanitizationFailure)
}

func TestScan_ReportsFieldPath(t *testing.T) {
	type payload struct {
		Description string
	}
	err := Scan(payload{Description: "write to a@b.co"})
	assert.ErrorIs(t, err, ErrSanitizationFailure)
	assert.Contains(t, err.Error(), "Description")
}

func TestScan_NilIsClean(t *testing.T) {
	assert.NoError(t, Scan(nil))
}
