package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONResult_AcceptsGenuineResult(t *testing.T) {
	p := NewJSONResult("weather", []string{"temperature", "conditions"}, []string{"error", "fallback"})

	verdict := p.Judge(map[string]interface{}{
		"temperature": 21.5,
		"conditions":  "cloudy",
	})
	assert.True(t, verdict.Acceptable)
}

func TestJSONResult_RejectsMissingField(t *testing.T) {
	p := NewJSONResult("weather", []string{"temperature"}, nil)

	verdict := p.Judge(map[string]interface{}{"conditions": "cloudy"})
	assert.False(t, verdict.Acceptable)
	assert.Contains(t, verdict.Detail, "temperature")
}

func TestJSONResult_RejectsErrorMarker(t *testing.T) {
	p := NewJSONResult("market-data", []string{"price"}, []string{"error", "fallback"})

	tests := []struct {
		name string
		body map[string]interface{}
		want bool
	}{
		{"error string", map[string]interface{}{"price": "1.23", "error": "rate limited"}, false},
		{"fallback flag", map[string]interface{}{"price": "1.23", "fallback": true}, false},
		{"fallback false is fine", map[string]interface{}{"price": "1.23", "fallback": false}, true},
		{"empty error is fine", map[string]interface{}{"price": "1.23", "error": ""}, true},
		{"null value", map[string]interface{}{"price": nil}, false},
		{"empty string value", map[string]interface{}{"price": "  "}, false},
		{"nil body", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Judge(tt.body).Acceptable)
		})
	}
}

func TestFunc_CustomJudgment(t *testing.T) {
	p := NewFunc("translation", func(body map[string]interface{}) Verdict {
		if body["translated"] == body["source"] {
			return Verdict{Detail: "output identical to input"}
		}
		return Verdict{Acceptable: true}
	})

	assert.False(t, p.Judge(map[string]interface{}{"source": "hola", "translated": "hola"}).Acceptable)
	assert.True(t, p.Judge(map[string]interface{}{"source": "hola", "translated": "hello"}).Acceptable)
}

func TestRegistry_FailsClosedForUnknownKind(t *testing.T) {
	r := NewRegistry()
	verdict := r.Judge("mystery", map[string]interface{}{"anything": 1})
	assert.False(t, verdict.Acceptable)
	assert.Contains(t, verdict.Detail, "mystery")
}

func TestRegistry_RoutesByKind(t *testing.T) {
	r := NewRegistry()
	r.Register(NewJSONResult("weather", []string{"temperature"}, nil))
	r.Register(NewJSONResult("market-data", []string{"price"}, nil))

	assert.True(t, r.Judge("weather", map[string]interface{}{"temperature": 3}).Acceptable)
	assert.False(t, r.Judge("weather", map[string]interface{}{"price": "9"}).Acceptable)
	assert.True(t, r.Judge("market-data", map[string]interface{}{"price": "9"}).Acceptable)
}
