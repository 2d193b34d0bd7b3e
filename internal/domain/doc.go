// Package domain models the Littlemore LTN questionnaire and its supporting
// street geography.
//
// # Data Sources
//
// Survey responses arrive as a CSV export from the online questionnaire: one
// row per respondent, one column per numbered question, plus the respondent's
// postcode and (optionally) street. The question columns are declared in a
// YAML questionnaire file so the same code can process later survey rounds.
//
// Street data is a hand-maintained CSV of the streets around the scheme. It is
// progressively enriched by the streets subcommands: postcode (scraped from
// Zoopla), latitude/longitude (Nominatim), and driving distances (OSRM and the
// Google Directions API).
//
// # UK Postcode Conventions
//
//	"OX4 4PU"  outward code "OX4", inward code "4PU".
//	District:  the outward code, e.g. "OX4".
//	Sector:    outward code plus the first inward digit, e.g. "OX4 4".
//
// Respondents type postcodes freely ("ox44pu", " OX4  4PU "). They are
// normalised to upper case with exactly one space before the three-character
// inward code. See [NormalizePostcode].
//
// # Answer Canonicalisation
//
// Categorical answers are matched case-insensitively against the question's
// options, then its aliases. Blank answers are counted as [NoAnswer]; anything
// else is counted as [OtherAnswer]. This keeps every tally summing to the
// number of respondents.
//
// # Distances
//
// All distances are stored in metres. "Before" distances come from the
// Directions API in bicycling mode, which approximates the road network
// without the modal filters; "after" distances come from OSRM driving routes,
// which include them. Differences of [RoutingNoiseMeters] or less are treated
// as routing noise when charting.
package domain
