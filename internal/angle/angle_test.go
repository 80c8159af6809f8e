package angle

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversions(t *testing.T) {
	tests := []struct {
		name    string
		angle   Angle
		radians float64
		degrees float64
		gon     float64
	}{
		{"zero", Radians(0), 0, 0, 0},
		{"right angle", Degrees(90), math.Pi / 2, 90, 100},
		{"half turn gon", Gons(200), math.Pi, 180, 200},
		{"negative", Degrees(-45), -math.Pi / 4, -45, -50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.radians, tt.angle.Radians(), 1e-12)
			assert.InDelta(t, tt.degrees, tt.angle.Degrees(), 1e-9)
			assert.InDelta(t, tt.gon, tt.angle.Gon(), 1e-9)
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		unit    string
		degrees float64
		wantErr bool
	}{
		{"dms", "123-30-00", DMS, 123.5, false},
		{"dms fractional seconds", "0-00-36.0", DMS, 0.01, false},
		{"negative dms", "-10-30-00", DMS, -10.5, false},
		{"degrees", "45.25", DEG, 45.25, false},
		{"gon", "100", GON, 90, false},
		{"radians", "3.141592653589793", RAD, 180, false},
		{"bad dms shape", "12-30", DMS, 0, true},
		{"dms minutes overflow", "12-60-00", DMS, 0, true},
		{"not a number", "abc", DEG, 0, true},
		{"unknown unit", "1", "MIL", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Parse(tt.in, tt.unit)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.degrees, a.Degrees(), 1e-9)
		})
	}
}

func TestDMSFormat(t *testing.T) {
	assert.Equal(t, "123-30-00", Degrees(123.5).DMS())
	assert.Equal(t, "0-00-01", Degrees(1.0/3600).DMS())
	assert.Equal(t, "-10-30-00", Degrees(-10.5).DMS())
	assert.Equal(t, "359-59-59", Degrees(359+59.0/60+59.0/3600).String())
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"inside range", 1.0, 1.0},
		{"full turn wraps to zero", FullTurn, 0},
		{"past full turn", FullTurn + 0.25, 0.25},
		{"negative", -0.25, FullTurn - 0.25},
		{"several turns", 3*FullTurn + 0.5, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Radians(tt.in).Normalize().Radians()
			assert.InDelta(t, tt.want, got, 1e-12)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.Less(t, got, FullTurn)
		})
	}
}

func TestArithmeticAndOrdering(t *testing.T) {
	a := Radians(1.0)
	b := Radians(0.25)

	assert.InDelta(t, 1.25, a.Add(b).Radians(), 1e-12)
	assert.InDelta(t, 0.75, a.Sub(b).Radians(), 1e-12)
	assert.InDelta(t, 3.0, a.Scale(3).Radians(), 1e-12)
	assert.True(t, b.Less(a))
	assert.False(t, a.Less(b))
	assert.Equal(t, 1, a.Cmp(b))
	assert.Equal(t, -1, b.Cmp(a))
	assert.Equal(t, 0, a.Cmp(Radians(1.0)))
	assert.True(t, a.Near(Radians(1.0+1e-10), 1e-9))
	assert.False(t, a.Near(Radians(1.1), 1e-9))
}

func TestIn(t *testing.T) {
	v, err := Degrees(90).In(GON)
	require.NoError(t, err)
	assert.InDelta(t, 100, v, 1e-9)

	_, err = Degrees(90).In(DMS)
	assert.Error(t, err)
	assert.True(t, IsValid(DMS))
	assert.False(t, IsValid("mil"))
}
