package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "", MaskSecret("   "))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "****5309", MaskSecret("555-867-5309"))
	assert.Equal(t, "****_abc", MaskSecret("sk_live_abc"))
}

func TestMaskJSON(t *testing.T) {
	masked := MaskJSON(map[string]any{
		"email":      "jane@example.com",
		"patient_id": "1934713383150489600",
		"cycle_id":   "2026-07",
		"amount":     int64(800),
		"nested": map[string]any{
			"phone": "555-867-5309",
			"note":  "ok",
		},
	})

	assert.Equal(t, "****.com", masked["email"])
	assert.Equal(t, "****9600", masked["patient_id"])
	assert.Equal(t, "2026-07", masked["cycle_id"])
	assert.Equal(t, int64(800), masked["amount"])

	nested := masked["nested"].(map[string]any)
	assert.Equal(t, "****5309", nested["phone"])
	assert.Equal(t, "ok", nested["note"])
}

func TestMaskJSON_Empty(t *testing.T) {
	assert.Nil(t, MaskJSON(nil))
	assert.Nil(t, MaskJSON(map[string]any{}))
	assert.Nil(t, MaskJSON(map[string]any{"  ": "dropped"}))
}
