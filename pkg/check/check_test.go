package check

import (
	"testing"

	"gotest.tools/assert"
)

type inner struct {
	N int
}

func (i inner) Validate() []error {
	return []error{
		GreaterThan(i.N, 0, "n"),
	}
}

type outer struct {
	Name   string
	Inner  inner
	Ptr    *inner
	Many   []inner
	ByName map[string]inner
}

func (o outer) Validate() []error {
	return []error{
		In(o.Name, []string{"a", "b"}, "name"),
	}
}

func TestValidateWalksNestedValues(t *testing.T) {
	ok := outer{
		Name:   "a",
		Inner:  inner{N: 1},
		Ptr:    &inner{N: 2},
		Many:   []inner{{N: 3}},
		ByName: map[string]inner{"x": {N: 4}},
	}
	assert.NilError(t, Validate(ok))
	assert.NilError(t, Validate(&ok))

	bad := ok
	bad.Inner.N = 0
	err := Validate(bad)
	assert.ErrorContains(t, err, "error found at root.Inner")
	assert.ErrorContains(t, err, "n must be greater than 0, got 0")

	bad = ok
	bad.Many = append([]inner{}, inner{N: -1})
	err = Validate(bad)
	assert.ErrorContains(t, err, "root.Many[0]")

	bad = ok
	bad.ByName = map[string]inner{"y": {N: 0}}
	err = Validate(bad)
	assert.ErrorContains(t, err, "root.ByName[y]")
}

func TestValidateCombinesErrors(t *testing.T) {
	bad := outer{Name: "nope", Inner: inner{N: 0}}
	err := Validate(bad)
	assert.ErrorContains(t, err, "errors found")
	assert.ErrorContains(t, err, `name must be one of [a, b], got "nope"`)
	assert.ErrorContains(t, err, "n must be greater than 0")
}

func TestNilPointerSkipped(t *testing.T) {
	assert.NilError(t, Validate(outer{Name: "b", Inner: inner{N: 1}}))
}

func TestHelpers(t *testing.T) {
	assert.NilError(t, GreaterThan(1, 0, "x"))
	assert.ErrorContains(t, GreaterThan(0, 0, "x"), "x must be greater than 0, got 0")
	assert.NilError(t, GreaterThanOrEqualTo(0.0, 0.0, "x"))
	assert.ErrorContains(t, GreaterThanOrEqualTo(-0.5, 0.0, "x"),
		"x must be greater than or equal to 0, got -0.5")
	assert.NilError(t, In("a", []string{"a", "b"}, "x"))
	assert.ErrorContains(t, In("c", []string{"a", "b"}, "x"), `x must be one of [a, b], got "c"`)
}
