package ups

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffBaselineAndChanges(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		prev Reading
		next Reading
		want Delta
	}{
		{name: "same value", prev: Reading{FieldStatus: "3"}, next: Reading{FieldStatus: "3"}, want: Delta{}},
		{name: "first observation", prev: Reading{}, next: Reading{FieldStatus: "5"}, want: Delta{}},
		{name: "nil previous", prev: nil, next: Reading{FieldStatus: "5"}, want: Delta{}},
		{
			name: "status change",
			prev: Reading{FieldStatus: "3"},
			next: Reading{FieldStatus: "5"},
			want: Delta{FieldStatus: {Old: "3", New: "5"}},
		},
		{
			name: "no numeric normalization",
			prev: Reading{FieldOutputLoad: "50"},
			next: Reading{FieldOutputLoad: "50.0"},
			want: Delta{FieldOutputLoad: {Old: "50", New: "50.0"}},
		},
		{
			name: "field missing from next is not a change",
			prev: Reading{FieldStatus: "3", FieldTemperature: "25"},
			next: Reading{FieldStatus: "3"},
			want: Delta{},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Diff(tt.prev, tt.next))
		})
	}
}

func TestDeltaFieldsCanonicalOrder(t *testing.T) {
	d := Delta{
		FieldTemperature:   {Old: "20", New: "21"},
		FieldStatus:        {Old: "3", New: "5"},
		FieldInputVoltage:  {Old: "230", New: "0"},
		FieldBatteryStatus: {Old: "2", New: "3"},
	}
	assert.Equal(t, []Field{FieldStatus, FieldBatteryStatus, FieldInputVoltage, FieldTemperature}, d.Fields())
}

func TestMergeKeepsUntouchedFields(t *testing.T) {
	prev := Reading{FieldStatus: "3", FieldTemperature: "25"}
	got := Merge(prev, Reading{FieldStatus: "5"})
	assert.Equal(t, Reading{FieldStatus: "5", FieldTemperature: "25"}, got)
	assert.Equal(t, "3", prev[FieldStatus], "merge must not mutate its input")
}

func TestLookupCodes(t *testing.T) {
	assert.Equal(t, "Online", LookupStatus("3").Text())
	assert.Equal(t, "On Battery", LookupStatus("5").Text())
	assert.Equal(t, "Unknown (2)", LookupStatus("2").Text())
	assert.Equal(t, "2", LookupStatus("2").Short())
	assert.Equal(t, "Unknown (abc)", LookupStatus("abc").Text())
	assert.Equal(t, "Battery Low", LookupBatteryStatus("3").Text())
	assert.Equal(t, "Unknown (9)", LookupBatteryStatus("9").Text())

	_, ok := Lookup(FieldOutputLoad, "3")
	assert.False(t, ok)
	assert.Equal(t, "On Battery", StatusOnBattery.String())
	assert.Equal(t, "Unknown (8)", OutputStatus(8).String())
}

func TestScale(t *testing.T) {
	assert.Equal(t, "50.0", Scale("500", 0.1))
	assert.Equal(t, "230.5", Scale("2305", 0.1))
	assert.Equal(t, "n/a", Scale("n/a", 0.1))
	assert.Equal(t, "500", Scale("500", 0))
}

func TestParseFieldAndLabels(t *testing.T) {
	f, err := ParseField("Output-Load")
	require.NoError(t, err)
	assert.Equal(t, FieldOutputLoad, f)

	_, err = ParseField("voltage")
	assert.Error(t, err)

	assert.Equal(t, "Output Load", FieldOutputLoad.Label())
	assert.Equal(t, "BATTERY_RUNTIME", FieldBatteryRuntime.EnvSuffix())
	assert.Len(t, AllFields(), 14)
}

func TestStateJSONRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	st := State{Reading: Reading{FieldStatus: "3", FieldBatteryCapacity: "100"}, LastUpdate: ts}

	b, err := json.Marshal(st)
	require.NoError(t, err)

	var flat map[string]string
	require.NoError(t, json.Unmarshal(b, &flat))
	assert.Equal(t, map[string]string{
		"status":           "3",
		"battery_capacity": "100",
		"last_update":      "2025-03-04T09:00:00Z",
	}, flat)

	var back State
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, st.Reading, back.Reading)
	assert.True(t, ts.Equal(back.LastUpdate))
}

func TestStateUnmarshalTolerance(t *testing.T) {
	raw := `{"status":"3","input_voltage":null,"firmware":"x","last_update":"2024-05-01T10:11:12.123456"}`
	var st State
	require.NoError(t, json.Unmarshal([]byte(raw), &st))
	assert.Equal(t, Reading{FieldStatus: "3"}, st.Reading)
	text, ok := st.LastUpdateText("2006-01-02 15:04:05")
	assert.True(t, ok)
	assert.Equal(t, "2024-05-01 10:11:12", text)

	require.NoError(t, json.Unmarshal([]byte(`{"last_update":"yesterday"}`), &st))
	text, ok = st.LastUpdateText("2006-01-02 15:04:05")
	assert.True(t, ok)
	assert.Equal(t, "yesterday", text)
}

func TestAllAbsent(t *testing.T) {
	configured := []Field{FieldStatus, FieldTemperature}
	assert.True(t, AllAbsent(Reading{}, configured))
	assert.False(t, AllAbsent(Reading{FieldTemperature: "20"}, configured))
	assert.False(t, AllAbsent(Reading{}, nil))
}

func TestOnBattery(t *testing.T) {
	assert.True(t, Reading{FieldStatus: "5"}.OnBattery())
	assert.False(t, Reading{FieldStatus: "3"}.OnBattery())
	assert.False(t, Reading{}.OnBattery())
}
