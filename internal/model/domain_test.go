package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ctxconfig/cac/internal/model"
)

func TestExperiment_ControlVariant(t *testing.T) {
	e := model.Experiment{
		Variants: []model.Variant{
			{ID: "a", VariantType: model.VariantExperimental},
			{ID: "c", VariantType: model.VariantControl},
		},
	}
	control := e.ControlVariant()
	if assert.NotNil(t, control) {
		assert.Equal(t, "c", control.ID)
	}
}

func TestExperiment_ControlVariant_None(t *testing.T) {
	e := model.Experiment{Variants: []model.Variant{{ID: "a", VariantType: model.VariantExperimental}}}
	assert.Nil(t, e.ControlVariant())
}

func TestExperiment_VariantByID(t *testing.T) {
	e := model.Experiment{
		Variants: []model.Variant{
			{ID: "a", VariantType: model.VariantExperimental},
			{ID: "c", VariantType: model.VariantControl},
		},
	}
	assert.NotNil(t, e.VariantByID("a"))
	assert.Nil(t, e.VariantByID("missing"))
}
