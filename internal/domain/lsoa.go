package domain

// LSOAMapping joins postcodes to Lower-layer Super Output Areas and those
// areas to their Index of Multiple Deprivation decile (1 = most deprived).
type LSOAMapping struct {
	Postcodes map[string]string // normalised postcode -> LSOA code
	Deciles   map[string]int    // LSOA code -> IMD decile
}

// Decile resolves a postcode to its LSOA code and decile. ok is false when
// either step has no match; lsoa is still set if the first step matched.
func (m LSOAMapping) Decile(postcode string) (lsoa string, decile int, ok bool) {
	lsoa, found := m.Postcodes[NormalizePostcode(postcode)]
	if !found {
		return "", 0, false
	}
	decile, ok = m.Deciles[lsoa]
	return lsoa, decile, ok
}
