package planner

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// CityPreferences is the "small table of city-specific feed preferences"
// used to re-rank search_stop_custom results: a query recognised as
// naming a city pushes stops ingested from that city's preferred feed
// (identified by its two-digit feed index prefix, e.g. "02/") to the top,
// and can deprioritise a feed explicitly (e.g. Lyon deprioritising the
// Île-de-France feed). It is a configuration surface, not a data
// dependency — a deployment with no opinion on this passes a zero-value
// CityPreferences and search_stop_custom behaves exactly like search_stop.
type CityPreferences struct {
	// Prefer maps a lowercased city keyword to the feed index prefix
	// (e.g. "02") whose stops should rank first for queries containing
	// that keyword.
	Prefer map[string]string
	// Deprioritize maps a lowercased city keyword to a feed index prefix
	// whose stops should rank last for queries containing that keyword.
	Deprioritize map[string]string
}

// cityConfigFile is the on-disk YAML shape:
//
//	cities:
//	  paris:
//	    prefer: "02"
//	  lyon:
//	    deprioritize: "02"
type cityConfigFile struct {
	Cities map[string]struct {
		Prefer       string `yaml:"prefer"`
		Deprioritize string `yaml:"deprioritize"`
	} `yaml:"cities"`
}

// LoadCityPreferences parses the optional city-preference YAML file
// described in SPEC_FULL.md §4.4.8.
func LoadCityPreferences(data []byte) (CityPreferences, error) {
	var cfg cityConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return CityPreferences{}, fmt.Errorf("parsing city preferences: %w", err)
	}
	prefs := CityPreferences{
		Prefer:       map[string]string{},
		Deprioritize: map[string]string{},
	}
	for city, rule := range cfg.Cities {
		key := normalizeCityName(city)
		if rule.Prefer != "" {
			prefs.Prefer[key] = rule.Prefer
		}
		if rule.Deprioritize != "" {
			prefs.Deprioritize[key] = rule.Deprioritize
		}
	}
	return prefs, nil
}

// rank scores a stop ID against the preference rules matched by query's
// recognised city keywords: negative sorts first, positive sorts last.
func (c CityPreferences) rank(query, stopID string) int {
	key := normalizeCityName(query)
	score := 0
	for city, prefix := range c.Prefer {
		if containsWord(key, city) && hasFeedPrefix(stopID, prefix) {
			score--
		}
	}
	for city, prefix := range c.Deprioritize {
		if containsWord(key, city) && hasFeedPrefix(stopID, prefix) {
			score++
		}
	}
	return score
}

func hasFeedPrefix(stopID, prefix string) bool {
	return len(stopID) > len(prefix) && stopID[:len(prefix)] == prefix && stopID[len(prefix)] == '/'
}

func containsWord(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	for _, word := range strings.Fields(haystack) {
		if word == needle {
			return true
		}
	}
	return false
}
