package onboarding

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPayload(t *testing.T) {
	now := time.Date(2026, 3, 4, 13, 5, 6, 0, time.FixedZone("IST", 5*3600+1800))

	p := BuildPayload("user-1", Answers{
		StepGender:              Single("Female"),
		StepKnownConditions:     Multi("Diabetes", "Hypertension"),
		StepInsuranceTypesOwned: Multi("Health", "Life"),
	}, now)

	assert.Equal(t, "user-1", p.UserID)
	require.NotNil(t, p.Gender)
	assert.Equal(t, "Female", *p.Gender)
	require.NotNil(t, p.KnownConditions)
	assert.Equal(t, "Diabetes, Hypertension", *p.KnownConditions)
	assert.Equal(t, []string{"Health", "Life"}, p.InsuranceTypesOwned)
	assert.Equal(t, "2026-03-04T07:35:06Z", p.SubmittedAt)

	assert.Nil(t, p.AgeGroup)
	assert.Nil(t, p.MonthlyIncome)
}

func TestBuildPayloadEmptyValuesAreNull(t *testing.T) {
	p := BuildPayload("user-1", Answers{
		StepKnownConditions:     Multi(),
		StepInsuranceTypesOwned: Multi(),
		StepGender:              Single(""),
	}, time.Unix(0, 0))

	assert.Nil(t, p.KnownConditions)
	assert.Nil(t, p.Gender)
	assert.Nil(t, p.InsuranceTypesOwned)

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Nil(t, raw["insurance_types_owned"])
	assert.Contains(t, raw, "hospitalized_past_5_years")
}
