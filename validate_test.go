package minicfg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type validationMock struct {
	reached bool
}

type validateSubLevel struct {
	BaseConfig
	Bar *validationMock `cfg:"bar"`
}

func (v *validateSubLevel) Check() error {
	v.Bar.reached = true
	return nil
}

type validateTopLevel struct {
	BaseConfig
	Foo       *validationMock  `cfg:"foo"`
	SubConfig validateSubLevel `cfg:"sub_config"`
}

func (v *validateTopLevel) Check() error {
	v.Foo.reached = true
	return nil
}

func validationTestConfig(t *testing.T, opts ...Option) validateTopLevel {
	t.Helper()
	d := map[string]any{
		"foo":        &validationMock{},
		"sub_config": map[string]any{"bar": &validationMock{}},
	}
	cfg, err := FromDict[validateTopLevel](d, opts...)
	require.NoError(t, err)
	return cfg
}

func TestValidationReachesEveryLevel(t *testing.T) {
	cfg := validationTestConfig(t)

	require.NoError(t, Validate(&cfg))
	assert.True(t, cfg.Foo.reached)
	assert.True(t, cfg.SubConfig.Bar.reached)
}

func TestValidationNotRunByDefault(t *testing.T) {
	cfg := validationTestConfig(t)

	assert.False(t, cfg.Foo.reached)
	assert.False(t, cfg.SubConfig.Bar.reached)
}

func TestWithValidation(t *testing.T) {
	cfg := validationTestConfig(t, WithValidation())

	assert.True(t, cfg.Foo.reached)
	assert.True(t, cfg.SubConfig.Bar.reached)
}

type recorder struct {
	order *[]string
}

type orderLeaf struct {
	BaseConfig
	Name string `cfg:"name"`
	rec  recorder
	fail bool
}

func (l orderLeaf) Check() error {
	*l.rec.order = append(*l.rec.order, l.Name)
	if l.fail {
		return errors.New(l.Name + " is invalid")
	}
	return nil
}

type orderMiddle struct {
	BaseConfig
	Name  string     `cfg:"name"`
	Leaf  orderLeaf  `cfg:"leaf"`
	Other *orderLeaf `cfg:"other"`
	rec   recorder
}

func (m *orderMiddle) Check() error {
	*m.rec.order = append(*m.rec.order, m.Name)
	return nil
}

type orderRoot struct {
	BaseConfig
	First  orderMiddle  `cfg:"first"`
	Second *orderMiddle `cfg:"second"`
	Skip   *orderMiddle `cfg:"skip"`
	rec    recorder
}

func (r orderRoot) Check() error {
	*r.rec.order = append(*r.rec.order, "root")
	return errors.New("root is invalid")
}

func TestValidatePreOrderAndAggregation(t *testing.T) {
	var order []string
	rec := recorder{order: &order}

	cfg := orderRoot{
		rec: rec,
		First: orderMiddle{
			Name:  "first",
			rec:   rec,
			Leaf:  orderLeaf{Name: "first.leaf", rec: rec, fail: true},
			Other: &orderLeaf{Name: "first.other", rec: rec},
		},
		Second: &orderMiddle{
			Name: "second",
			rec:  rec,
			Leaf: orderLeaf{Name: "second.leaf", rec: rec, fail: true},
		},
	}

	err := Validate(cfg)
	require.Error(t, err)

	assert.Equal(t, []string{"root", "first", "first.leaf", "first.other", "second", "second.leaf"}, order)
	assert.Len(t, multierr.Errors(err), 3)
	assert.ErrorContains(t, err, "first.leaf is invalid")
	assert.ErrorContains(t, err, "second.leaf is invalid")
}

func TestValidateIgnoresNilAndNonStructs(t *testing.T) {
	var nilCfg *validateTopLevel

	assert.NoError(t, Validate(nil))
	assert.NoError(t, Validate(nilCfg))
	assert.NoError(t, Validate(42))
}

func TestWithValidationReturnsFailures(t *testing.T) {
	type failing struct {
		BaseConfig
		Leaf orderLeaf `cfg:"leaf"`
	}

	var order []string
	_, err := FromDict[failing](
		map[string]any{"leaf": orderLeaf{Name: "leaf", rec: recorder{order: &order}, fail: true}},
		WithValidation(),
	)
	assert.ErrorContains(t, err, "leaf is invalid")
	assert.Equal(t, []string{"leaf"}, order)
}
