package lsoa_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ltn-survey/internal/domain"
	"github.com/couchcryptid/ltn-survey/internal/lsoa"
)

const onsLookup = `pcd7,pcds,lsoa11cd,lsoa21cd
OX4 4PU,OX4 4PU,E01028541,E01035321
OX4 3ST,OX4 3ST,E01028540,E01035320
OX4 4PW,OX4 4PW,E01028541,
`

const imdTable = `LSOA code (2011),LSOA name (2011),Index of Multiple Deprivation (IMD) Rank,Index of Multiple Deprivation (IMD) Decile
E01035321,Oxford 021F,4500,2
E01035320,Oxford 021E,12000,4
`

func TestLoadPostcodes_Prefers2021(t *testing.T) {
	m, err := lsoa.LoadPostcodes(strings.NewReader(onsLookup))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"OX4 4PU": "E01035321",
		"OX4 3ST": "E01035320",
	}, m)
}

func TestLoadPostcodes_FallsBackTo2011(t *testing.T) {
	m, err := lsoa.LoadPostcodes(strings.NewReader("pcds,lsoa11cd\nox44pu,E01028541\n"))
	require.NoError(t, err)
	assert.Equal(t, "E01028541", m["OX4 4PU"])
}

func TestLoadPostcodes_MissingColumns(t *testing.T) {
	_, err := lsoa.LoadPostcodes(strings.NewReader("pcds,oa21cd\nOX4 4PU,E00000001\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMissingColumn))
}

func TestLoadDeciles(t *testing.T) {
	d, err := lsoa.LoadDeciles(strings.NewReader(imdTable))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"E01035321": 2, "E01035320": 4}, d)

	_, err = lsoa.LoadDeciles(strings.NewReader("LSOA code,decile\nE01035321,11\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid decile")
}

func TestCountByDecile(t *testing.T) {
	postcodes, err := lsoa.LoadPostcodes(strings.NewReader(onsLookup))
	require.NoError(t, err)
	deciles, err := lsoa.LoadDeciles(strings.NewReader(imdTable))
	require.NoError(t, err)
	m := domain.LSOAMapping{Postcodes: postcodes, Deciles: deciles}

	responses := []domain.Response{
		{Postcode: "OX4 4PU"},
		{Postcode: "OX4 4PU"},
		{Postcode: "OX4 3ST"},
		{Postcode: "OX4 4PW"}, // no 2021 LSOA
		{Postcode: "SW1A 1AA"},
	}

	got := lsoa.CountByDecile(responses, m)
	assert.Equal(t, []lsoa.DecileCount{
		{Decile: "2", Responses: 2},
		{Decile: "4", Responses: 1},
		{Decile: lsoa.Unknown, Responses: 2},
	}, got)

	var buf bytes.Buffer
	require.NoError(t, lsoa.Frame(got).WriteCSV(&buf))
	assert.Equal(t, "decile,responses\n2,2\n4,1\nunknown,2\n", buf.String())
}
