package pedestrian

import (
	"testing"
	"time"

	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/config"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/models"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestTransformer(t *testing.T) *Transformer {
	t.Helper()
	m, err := config.DefaultMappings()
	require.NoError(t, err)
	return NewTransformer(m.Pedestrian, zap.NewNop())
}

func load(records [][]string) dataframe.DataFrame {
	return dataframe.LoadRecords(records,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
}

func sampleRaw() dataframe.DataFrame {
	return load([][]string{
		{"Date", "Hour", "Area A", "Melbourne Central", "Little Londsdale St (East)", "380 Elizabeth St",
			"Rmit Building 80", "Queen Victoria Market", "Rmit Bld 80 - 445 Swanston Street"},
		{"01/01/2022", "10", "100", "100", "100", "100", "100", "100", "100"},
		{"01/01/2022", "11", "200", "200", "200", "200", "200", "200", "200"},
	})
}

func TestCleanColumns(t *testing.T) {
	cases := map[string]string{
		"lowercase":                          "Lowercase",
		"UPPERCASE":                          "Uppercase",
		"MiXeD":                              "Mixed",
		"a-b-c-d":                            "A - B - C - D",
		"word - word":                        "Word - Word",
		"test2name":                          "Test2Name",
		"123abc":                             "123Abc",
		"word(test)":                         "Word(Test)",
		"word_with_underscore":               "Word_With_Underscore",
		"test.2.name":                        "Test.2.Name",
		"word--hyphen":                       "Word - - Hyphen",
		"  extra    spaces\there ":           "Extra Spaces Here",
		"café-name":                          "Café - Name",
		"测试-column":                          "测试 - Column",
		"lincoln-swanston-(W)":               "Lincoln - Swanston - (W)",
		"":                                   "",
		"Melbourne Central - Flinders Street": "Melbourne Central - Flinders Street",
	}

	for in, want := range cases {
		got, err := CleanColumns([]string{in})
		require.NoError(t, err)
		assert.Equal(t, want, got[0], "input %q", in)
	}
}

func TestCleanColumnsPreservesOrderAndIsIdempotent(t *testing.T) {
	in := []string{"zeta-col", "alpha col", "test-column"}

	first, err := CleanColumns(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"Zeta - Col", "Alpha Col", "Test - Column"}, first)

	second, err := CleanColumns(first)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCleanColumnsEmpty(t *testing.T) {
	_, err := CleanColumns(nil)
	assert.ErrorIs(t, err, models.ErrEmptyInput)
}

func TestStandardizeColumnName(t *testing.T) {
	tr := newTestTransformer(t)

	assert.Equal(t, "Lincoln - Swanston (West)", tr.StandardizeColumnName("Lincoln - Swanston (W)"))
	assert.Equal(t, "Harbour Esplanade (West) - Pedestrian Path", tr.StandardizeColumnName("Harbour Esplanade - Pedestrian Path"))
	assert.Equal(t, "Harbour Esplanade (West) - Bike Path", tr.StandardizeColumnName("Harbour Esplanade - Bike Path"))
	assert.Equal(t, "Rmit Building 80", tr.StandardizeColumnName("Rmit Bld 80 - 445 Swanston Street"))
	assert.Equal(t, "Some Other Street", tr.StandardizeColumnName("Some Other Street"))
	assert.Equal(t, "", tr.StandardizeColumnName(""))
	assert.Equal(t, "       ", tr.StandardizeColumnName("       "))
}

func TestExtractArea(t *testing.T) {
	tr := newTestTransformer(t)
	cases := map[string]string{
		"Area A": "Area A, Victoria, Australia",
		"Melbourne Central - Little Londsdale St (East)":        "Melbourne Central, Victoria, Australia",
		"380 Elizabeth St":                                      "380 Elizabeth St, Victoria, Australia",
		"":                                                      ", Victoria, Australia",
		"Rmit Building 80 - Little Londsdale St (East)":         "RMIT Building, Victoria, Australia",
		"Qv Market - 380 Elizabeth St":                          "Queen Victoria Market, Victoria, Australia",
		"Melbourne Central - Flinders Street Station Underpass": "Melbourne Central, Victoria, Australia",
		"Flagstaff Station (East)":                              "Flagstaff Station, Victoria, Australia",
	}

	for in, want := range cases {
		assert.Equal(t, want, tr.ExtractArea(in), "input %q", in)
	}
	assert.Equal(t, "la trobe st, victoria, australia", tr.QueryKey("La Trobe St - William St (South)"))
}

func TestCleanSumsRenamedColumns(t *testing.T) {
	tr := newTestTransformer(t)

	table, err := tr.Clean(sampleRaw())
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())

	day := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []time.Time{day, day}, table.Dates)
	assert.Equal(t, []int{10, 11}, table.Hours)

	rmit, ok := table.Column("Rmit Building 80")
	require.True(t, ok)
	assert.Equal(t, []int{200, 400}, rmit)

	for _, name := range []string{"Area A", "Melbourne Central", "Little Londsdale St (East)", "380 Elizabeth St", "Queen Victoria Market"} {
		col, ok := table.Column(name)
		require.True(t, ok, name)
		assert.Equal(t, []int{100, 200}, col, name)
	}

	for _, name := range []string{
		"William St - Little Lonsdale St (West)",
		"Errol St (West)",
		"Flagstaff Station (East)",
		"380 Elizabeth St",
		"La Trobe St - William St (South)",
	} {
		_, ok := table.Column(name)
		assert.True(t, ok, name)
	}
	zeros, _ := table.Column("Errol St (West)")
	assert.Equal(t, []int{0, 0}, zeros)

	assert.True(t, sortedStrings(table.Locations))
	assert.Len(t, table.Locations, 10)
}

func TestCleanMergesDuplicateColumnsBySum(t *testing.T) {
	tr := newTestTransformer(t)
	raw := load([][]string{
		{"Date", "Hour", "Lincoln-Swanston (W)", "Lincoln - Swanston (West)"},
		{"01/01/2022", "0", "100", "10"},
		{"01/01/2022", "1", "200", "20"},
	})

	table, err := tr.Clean(raw)
	require.NoError(t, err)

	col, ok := table.Column("Lincoln - Swanston (West)")
	require.True(t, ok)
	assert.Equal(t, []int{110, 220}, col)
}

func TestCleanReplacesInvalidCounts(t *testing.T) {
	tr := newTestTransformer(t)
	raw := load([][]string{
		{"Date", "Hour", "Area A"},
		{"01/01/2022", "0", "123"},
		{"02/01/2022", "1", ""},
		{"03/01/2022", "2", "abc"},
		{"04/01/2022", "3", "    "},
		{"05/01/2022", "4", "12.7"},
		{"06/01/2022", "5", "-4"},
	})

	table, err := tr.Clean(raw)
	require.NoError(t, err)

	col, ok := table.Column("Area A")
	require.True(t, ok)
	assert.Equal(t, []int{123, 0, 0, 0, 12, 0}, col)
	assert.Equal(t, time.Date(2022, 1, 2, 0, 0, 0, 0, time.UTC), table.Dates[1])
}

func TestCleanDropsRowsWithoutDate(t *testing.T) {
	tr := newTestTransformer(t)
	raw := load([][]string{
		{"Date", "Hour", "Area A"},
		{"", "0", "5"},
		{"02/01/2022", "1", "123"},
		{"not a date", "2", "7"},
	})

	table, err := tr.Clean(raw)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, time.Date(2022, 1, 2, 0, 0, 0, 0, time.UTC), table.Dates[0])

	col, _ := table.Column("Area A")
	assert.Equal(t, []int{123}, col)
}

func TestCleanErrors(t *testing.T) {
	tr := newTestTransformer(t)

	_, err := tr.Clean(dataframe.New())
	assert.ErrorIs(t, err, models.ErrEmptyInput)

	_, err = tr.Clean(load([][]string{{"Date", "Area A"}, {"01/01/2022", "1"}}))
	assert.ErrorIs(t, err, models.ErrMissingColumn)

	_, err = tr.Clean(load([][]string{{"Date", "Hour"}, {"bad", "1"}}))
	assert.ErrorIs(t, err, models.ErrEmptyInput)
}

func sampleClean() *CleanTable {
	day := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	return &CleanTable{
		Dates: []time.Time{day, day},
		Hours: []int{10, 11},
		Locations: []string{
			"Melbourne Central",
			"Rmit Building 80",
			"Errol St (West)",
		},
		Counts: [][]int{{100, 200}, {200, 400}, {0, 0}},
	}
}

func TestWrangleMeltsLocationMajor(t *testing.T) {
	tr := newTestTransformer(t)

	obs, err := tr.Wrangle(sampleClean())
	require.NoError(t, err)
	require.Len(t, obs, 6)

	ten := time.Date(2022, 1, 1, 10, 0, 0, 0, time.UTC)
	eleven := ten.Add(time.Hour)

	assert.Equal(t, models.PedestrianObservation{
		Timestamp: ten, Location: "Melbourne Central", PedestrianCount: 100,
		QueryKey: "melbourne central, victoria, australia",
	}, obs[0])
	assert.Equal(t, eleven, obs[1].Timestamp)
	assert.Equal(t, "Rmit Building 80", obs[2].Location)
	assert.Equal(t, 400, obs[3].PedestrianCount)
	assert.Equal(t, "rmit building, victoria, australia", obs[3].QueryKey)
	assert.Equal(t, "errol st, victoria, australia", obs[5].QueryKey)
}

func TestWrangleErrors(t *testing.T) {
	tr := newTestTransformer(t)

	_, err := tr.Wrangle(&CleanTable{})
	assert.ErrorIs(t, err, models.ErrEmptyInput)

	table := sampleClean()
	table.Hours[1] = 24
	_, err = tr.Wrangle(table)
	assert.ErrorIs(t, err, models.ErrTypeConversion)
}

func TestTransform(t *testing.T) {
	m, err := config.DefaultMappings()
	require.NoError(t, err)
	core, logs := observer.New(zapcore.InfoLevel)
	tr := NewTransformer(m.Pedestrian, zap.New(core))

	obs, err := tr.Transform(sampleRaw())
	require.NoError(t, err)
	require.Len(t, obs, 20)

	var locations []string
	for i := 0; i < len(obs); i += 2 {
		locations = append(locations, obs[i].Location)
	}
	assert.Equal(t, []string{
		"380 Elizabeth St",
		"Area A",
		"Errol St (West)",
		"Flagstaff Station (East)",
		"La Trobe St - William St (South)",
		"Little Londsdale St (East)",
		"Melbourne Central",
		"Queen Victoria Market",
		"Rmit Building 80",
		"William St - Little Lonsdale St (West)",
	}, locations)

	counts := make([]int, len(obs))
	for i, o := range obs {
		counts[i] = o.PedestrianCount
	}
	assert.Equal(t, []int{100, 200, 100, 200, 0, 0, 0, 0, 0, 0, 100, 200, 100, 200, 100, 200, 200, 400, 0, 0}, counts)
	assert.Equal(t, "area a, victoria, australia", obs[2].QueryKey)

	assert.Equal(t, 1, logs.FilterMessage("Cleaning pedestrian count data...").Len())
	assert.Equal(t, 1, logs.FilterMessage("Wrangling pedestrian count data...").Len())
	assert.Equal(t, 1, logs.FilterMessageSnippet("completed").Len())

	_, err = tr.Transform(dataframe.New())
	assert.ErrorIs(t, err, models.ErrEmptyInput)
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}
