package tariff

import "strings"

type Agreement struct {
	Name     string
	Eligible bool
}

var countryAliases = map[string]string{
	"UNITED STATES": "US", "USA": "US", "UNITED STATES OF AMERICA": "US",
	"CANADA": "CA", "CAN": "CA",
	"MEXICO": "MX", "MEX": "MX",
	"GERMANY": "DE", "DEU": "DE",
	"FRANCE": "FR", "FRA": "FR",
	"ITALY": "IT", "ITA": "IT",
	"SPAIN": "ES", "ESP": "ES",
	"NETHERLANDS": "NL", "NLD": "NL",
	"BELGIUM": "BE", "BEL": "BE",
	"POLAND": "PL", "POL": "PL",
	"IRELAND": "IE", "IRL": "IE",
	"AUSTRIA": "AT", "AUT": "AT",
	"SWEDEN": "SE", "SWE": "SE",
	"CHINA": "CN", "CHN": "CN",
	"JAPAN": "JP", "JPN": "JP",
	"UNITED KINGDOM": "GB", "UK": "GB", "GBR": "GB",
}

var blocs = map[string]map[string]bool{
	"USMCA": set("US", "CA", "MX"),
	"EU": set("AT", "BE", "BG", "HR", "CY", "CZ", "DK", "EE", "FI", "FR", "DE", "GR", "HU",
		"IE", "IT", "LV", "LT", "LU", "MT", "NL", "PL", "PT", "RO", "SK", "SI", "ES", "SE"),
}

func set(codes ...string) map[string]bool {
	m := make(map[string]bool, len(codes))
	for _, c := range codes {
		m[c] = true
	}
	return m
}

// CountryCode maps a country name, ISO alpha-3 or alpha-2 code to alpha-2.
func CountryCode(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if code, ok := countryAliases[s]; ok {
		return code
	}
	return s
}

// AgreementFor reports the preferential agreement covering an origin and
// destination pair. Goods moving within one country are never eligible.
func AgreementFor(origin, destination string) Agreement {
	o, d := CountryCode(origin), CountryCode(destination)
	if o == "" || d == "" || o == d {
		return Agreement{}
	}
	for _, name := range []string{"USMCA", "EU"} {
		members := blocs[name]
		if members[o] && members[d] {
			return Agreement{Name: name, Eligible: true}
		}
	}
	return Agreement{}
}
