package factory_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/expenditure-engine/allocation"
	"github.com/warp/expenditure-engine/factory"
)

const sampleDataset = `{
  "period": {"start": "2025-03-01", "end": "2025-03-31"},
  "employees": [
    {"id": "emp-1", "name": "A. Researcher", "department": "Sensors"}
  ],
  "rates": [
    {"employee_id": "emp-1", "from": "2025-03-01", "to": "2025-03-31", "hourly_rate": "20"}
  ],
  "records": [
    {"employee_id": "emp-1", "date": "2025-03-06", "topic_id": "topic-a", "hours": "10"}
  ],
  "projects": [
    {"id": "proj-1", "name": "Sensor Array", "funding_target": "150",
     "eligible_topics": ["topic-a"], "funding_agency": "RANNIS",
     "currency": "ISK", "grant_min": "100", "grant_max": "200"}
  ]
}`

func TestDatasetFactory_Parse_FullBundle(t *testing.T) {
	bundle, err := factory.NewDatasetFactory().Parse([]byte(sampleDataset))
	require.NoError(t, err)

	assert.Equal(t, allocation.NewDate(2025, time.March, 1), bundle.Period.Start)
	require.Len(t, bundle.Employees, 1)
	assert.Equal(t, "A. Researcher", bundle.Employees[0].Name)

	require.Len(t, bundle.Dataset.Records, 1)
	rec := bundle.Dataset.Records[0]
	assert.Equal(t, allocation.TopicID("topic-a"), rec.TopicID)
	assert.True(t, rec.Hours.Value.Equal(decimal.NewFromInt(10)))

	rs := bundle.Dataset.Rates["emp-1"]
	require.NotNil(t, rs)
	assert.True(t, rs.RateOn(allocation.NewDate(2025, time.March, 6)).Value.Equal(decimal.NewFromInt(20)))

	require.Len(t, bundle.Projects, 1)
	spec := bundle.Projects[0]
	assert.Equal(t, allocation.ProjectID("proj-1"), spec.ProjectID)
	assert.True(t, spec.FundingTarget.Value.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, "RANNIS", spec.FundingAgency)
	require.NotNil(t, spec.GrantMin)
	assert.True(t, spec.GrantMin.Value.Equal(decimal.NewFromInt(100)))
}

func TestDatasetFactory_Parse_RejectsMalformedJSON(t *testing.T) {
	_, err := factory.NewDatasetFactory().Parse([]byte(`{"period":`))
	assert.Error(t, err)
}

func TestDatasetFactory_Parse_RejectsBadDate(t *testing.T) {
	_, err := factory.NewDatasetFactory().Parse([]byte(`{
	  "period": {"start": "March 1st", "end": "2025-03-31"}
	}`))
	assert.Error(t, err)
}

func TestDatasetFactory_ParseProject_RejectsMissingTopics(t *testing.T) {
	_, err := factory.NewDatasetFactory().ParseProject(factory.ProjectJSON{
		ID:            "proj-1",
		Name:          "No Topics",
		FundingTarget: "100",
	})
	assert.Error(t, err)
}

func TestDatasetFactory_ParseProject_RejectsBadDecimal(t *testing.T) {
	_, err := factory.NewDatasetFactory().ParseProject(factory.ProjectJSON{
		ID:             "proj-1",
		Name:           "Bad Target",
		FundingTarget:  "lots",
		EligibleTopics: []string{"topic-a"},
	})
	assert.Error(t, err)
}

func TestDatasetFactory_ParseProject_NegativeTargetRejected(t *testing.T) {
	_, err := factory.NewDatasetFactory().ParseProject(factory.ProjectJSON{
		ID:             "proj-1",
		Name:           "Negative",
		FundingTarget:  "-5",
		EligibleTopics: []string{"topic-a"},
	})
	assert.ErrorIs(t, err, allocation.ErrInvalidInput)
}
