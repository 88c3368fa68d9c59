package ns1

import (
	"sort"
	"strings"

	"github.com/yuriy-kovalchuk/yk-ns1-sync/internal/ns1/api"
)

// The platform's named georegions and the continents they stand for. The
// US-* entries only exist so that records written before country-stage state
// filtering still parse; nothing emits them anymore.
var regionToContinent = map[string]string{
	"AFRICA":        "AF",
	"ASIAPAC":       "AS",
	"EUROPE":        "EU",
	"SOUTH-AMERICA": "SA",
	"US-CENTRAL":    "NA",
	"US-EAST":       "NA",
	"US-WEST":       "NA",
}

// Continents the platform can target natively as a georegion. Continents
// absent here (AS, NA, OC) have to be expanded into their full country list
// at the country filtering stage instead.
var continentToRegions = map[string][]string{
	"AF": {"AFRICA"},
	"EU": {"EUROPE"},
	"SA": {"SOUTH-AMERICA"},
}

// ISO 3166-1 alpha-2 country to continent assignment. Drives both the
// continent-to-country expansion on build and the country-to-continent fold
// on parse.
var countryToContinent = map[string]string{
	// Africa
	"AO": "AF", "BF": "AF", "BI": "AF", "BJ": "AF", "BW": "AF", "CD": "AF",
	"CF": "AF", "CG": "AF", "CI": "AF", "CM": "AF", "CV": "AF", "DJ": "AF",
	"DZ": "AF", "EG": "AF", "EH": "AF", "ER": "AF", "ET": "AF", "GA": "AF",
	"GH": "AF", "GM": "AF", "GN": "AF", "GQ": "AF", "GW": "AF", "KE": "AF",
	"KM": "AF", "LR": "AF", "LS": "AF", "LY": "AF", "MA": "AF", "MG": "AF",
	"ML": "AF", "MR": "AF", "MU": "AF", "MW": "AF", "MZ": "AF", "NA": "AF",
	"NE": "AF", "NG": "AF", "RE": "AF", "RW": "AF", "SC": "AF", "SD": "AF",
	"SH": "AF", "SL": "AF", "SN": "AF", "SO": "AF", "SS": "AF", "ST": "AF",
	"SZ": "AF", "TD": "AF", "TG": "AF", "TN": "AF", "TZ": "AF", "UG": "AF",
	"YT": "AF", "ZA": "AF", "ZM": "AF", "ZW": "AF",
	// Antarctica
	"AQ": "AN", "BV": "AN", "GS": "AN", "HM": "AN", "TF": "AN",
	// Asia
	"AE": "AS", "AF": "AS", "AM": "AS", "AZ": "AS", "BD": "AS", "BH": "AS",
	"BN": "AS", "BT": "AS", "CC": "AS", "CN": "AS", "CX": "AS", "CY": "AS",
	"GE": "AS", "HK": "AS", "ID": "AS", "IL": "AS", "IN": "AS", "IO": "AS",
	"IQ": "AS", "IR": "AS", "JO": "AS", "JP": "AS", "KG": "AS", "KH": "AS",
	"KP": "AS", "KR": "AS", "KW": "AS", "KZ": "AS", "LA": "AS", "LB": "AS",
	"LK": "AS", "MM": "AS", "MN": "AS", "MO": "AS", "MV": "AS", "MY": "AS",
	"NP": "AS", "OM": "AS", "PH": "AS", "PK": "AS", "PS": "AS", "QA": "AS",
	"SA": "AS", "SG": "AS", "SY": "AS", "TH": "AS", "TJ": "AS", "TL": "AS",
	"TM": "AS", "TR": "AS", "TW": "AS", "UZ": "AS", "VN": "AS", "YE": "AS",
	// Europe
	"AD": "EU", "AL": "EU", "AT": "EU", "AX": "EU", "BA": "EU", "BE": "EU",
	"BG": "EU", "BY": "EU", "CH": "EU", "CZ": "EU", "DE": "EU", "DK": "EU",
	"EE": "EU", "ES": "EU", "FI": "EU", "FO": "EU", "FR": "EU", "GB": "EU",
	"GG": "EU", "GI": "EU", "GR": "EU", "HR": "EU", "HU": "EU", "IE": "EU",
	"IM": "EU", "IS": "EU", "IT": "EU", "JE": "EU", "LI": "EU", "LT": "EU",
	"LU": "EU", "LV": "EU", "MC": "EU", "MD": "EU", "ME": "EU", "MK": "EU",
	"MT": "EU", "NL": "EU", "NO": "EU", "PL": "EU", "PT": "EU", "RO": "EU",
	"RS": "EU", "RU": "EU", "SE": "EU", "SI": "EU", "SJ": "EU", "SK": "EU",
	"SM": "EU", "UA": "EU", "VA": "EU",
	// North America
	"AG": "NA", "AI": "NA", "AW": "NA", "BB": "NA", "BL": "NA", "BM": "NA",
	"BQ": "NA", "BS": "NA", "BZ": "NA", "CA": "NA", "CR": "NA", "CU": "NA",
	"CW": "NA", "DM": "NA", "DO": "NA", "GD": "NA", "GL": "NA", "GP": "NA",
	"GT": "NA", "HN": "NA", "HT": "NA", "JM": "NA", "KN": "NA", "KY": "NA",
	"LC": "NA", "MF": "NA", "MQ": "NA", "MS": "NA", "MX": "NA", "NI": "NA",
	"PA": "NA", "PM": "NA", "PR": "NA", "SV": "NA", "SX": "NA", "TC": "NA",
	"TT": "NA", "US": "NA", "VC": "NA", "VG": "NA", "VI": "NA",
	// Oceania
	"AS": "OC", "AU": "OC", "CK": "OC", "FJ": "OC", "FM": "OC", "GU": "OC",
	"KI": "OC", "MH": "OC", "MP": "OC", "NC": "OC", "NF": "OC", "NR": "OC",
	"NU": "OC", "NZ": "OC", "PF": "OC", "PG": "OC", "PN": "OC", "PW": "OC",
	"SB": "OC", "TK": "OC", "TO": "OC", "TV": "OC", "UM": "OC", "VU": "OC",
	"WF": "OC", "WS": "OC",
	// South America
	"AR": "SA", "BO": "SA", "BR": "SA", "CL": "SA", "CO": "SA", "EC": "SA",
	"FK": "SA", "GF": "SA", "GY": "SA", "PE": "SA", "PY": "SA", "SR": "SA",
	"UY": "SA", "VE": "SA",
}

// continentCountries enumerates all countries for the continents that need
// expansion. Built once from countryToContinent.
var continentCountries = map[string]map[string]bool{}

// supportedContinents is the set of bare two-letter codes accepted at
// validation time.
var supportedContinents = map[string]bool{}

func init() {
	for _, con := range []string{"AS", "NA", "OC"} {
		continentCountries[con] = map[string]bool{}
	}
	for country, con := range countryToContinent {
		if set, ok := continentCountries[con]; ok {
			set[country] = true
		}
	}
	for _, con := range regionToContinent {
		supportedContinents[con] = true
	}
}

// continentNeedsExpansion reports whether the continent has no native
// georegion and must be written as its country list.
func continentNeedsExpansion(con string) bool {
	_, ok := continentCountries[con]
	return ok
}

// parseRuleGeos converts a region's wire metadata back into declarative geo
// codes. Countries belonging to an expansion continent collapse back to the
// bare continent code when the full country set is present, or when the
// continent was recorded in the region note's continents side-channel;
// otherwise they surface individually as continent-country codes.
func parseRuleGeos(meta api.RegionMeta, n noteData) []string {
	geos := map[string]bool{}

	for _, georegion := range meta.Georegion {
		if con, ok := regionToContinent[georegion]; ok {
			geos[con] = true
		}
	}

	continentsFromNotes := map[string]bool{}
	for _, con := range strings.Split(n.get("continents"), ",") {
		if con != "" {
			continentsFromNotes[con] = true
		}
	}

	special := map[string]map[string]bool{}
	for _, country := range meta.Country {
		con, ok := countryToContinent[country]
		if !ok {
			continue
		}
		if continentNeedsExpansion(con) {
			if special[con] == nil {
				special[con] = map[string]bool{}
			}
			special[con][country] = true
		} else {
			geos[con+"-"+country] = true
		}
	}

	for con, countries := range special {
		if continentsFromNotes[con] || setsEqual(countries, continentCountries[con]) {
			geos[con] = true
			continue
		}
		for country := range countries {
			geos[con+"-"+country] = true
		}
	}

	for _, state := range meta.USState {
		geos["NA-US-"+state] = true
	}
	for _, province := range meta.CAProvince {
		geos["NA-CA-"+province] = true
	}

	return sortedKeys(geos)
}

func setsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
