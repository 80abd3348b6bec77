package pedestrian

import (
	"strings"
)

// ExtractArea turns a sensor location into a geocoder query: the text before
// the first "-" or "(", renamed when the geocoder knows the place under a
// different name, followed by the area suffix.
//
//	"Melbourne Central - Little Londsdale St (East)" -> "Melbourne Central, Victoria, Australia"
//	"Qv Market - 380 Elizabeth St"                   -> "Queen Victoria Market, Victoria, Australia"
func (t *Transformer) ExtractArea(name string) string {
	if i := strings.IndexAny(name, "-("); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSpace(name)

	if mapped, ok := t.nominatim[name]; ok {
		name = mapped
	}
	return name + t.rules.AreaSuffix
}

// QueryKey is the normalized form of ExtractArea used to join observations
// with geocoded coordinates.
func (t *Transformer) QueryKey(name string) string {
	return NormalizeKey(t.ExtractArea(name))
}

func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
