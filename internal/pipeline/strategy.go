package pipeline

import "strings"

// Strategy turns a place name into one geocoder query. Strategies are tried in
// order until one yields a coordinate.
type Strategy struct {
	Name     string `mapstructure:"name"`
	Template string `mapstructure:"template"`
}

// Placeholders understood by Strategy templates.
const (
	PlaceholderName    = "{name}"
	PlaceholderRegion  = "{region}"
	PlaceholderCountry = "{country}"
)

// DefaultStrategies queries the seat of government first and the bare
// municipality second.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "seat", Template: "Prefeitura Municipal de {name}, {region}, {country}"},
		{Name: "municipality", Template: "{name}, {region}, {country}"},
	}
}

// Query renders the template for name.
func (s Strategy) Query(name, region, country string) string {
	r := strings.NewReplacer(
		PlaceholderName, strings.TrimSpace(name),
		PlaceholderRegion, region,
		PlaceholderCountry, country,
	)
	return r.Replace(s.Template)
}
