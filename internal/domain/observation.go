package domain

import (
	"strings"
	"time"
)

// CategoryFields names the categorical levels that make up an EntityKey, in
// the order used for the "cat" vector.
var CategoryFields = [4]string{"country", "city", "location", "parameter"}

// EntityKey identifies one logical time series.
type EntityKey struct {
	Country   string `json:"country"`
	City      string `json:"city"`
	Location  string `json:"location"`
	Parameter string `json:"parameter"`
}

// Levels returns the key's categorical values in CategoryFields order.
func (k EntityKey) Levels() [4]string {
	return [4]string{k.Country, k.City, k.Location, k.Parameter}
}

// Compare orders keys lexicographically level by level.
func (k EntityKey) Compare(o EntityKey) int {
	a, b := k.Levels(), o.Levels()
	for i := range a {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

func (k EntityKey) String() string {
	return strings.Join([]string{k.Country, k.City, k.Location, k.Parameter}, "/")
}

// RawObservation is one measurement event as read from the source table.
// Missing numeric fields are NaN.
type RawObservation struct {
	Country   string
	City      string
	Location  string
	Parameter string
	Timestamp time.Time
	Value     float64
	Latitude  float64
	Longitude float64
}

// Key returns the entity the observation belongs to.
func (o RawObservation) Key() EntityKey {
	return EntityKey{
		Country:   o.Country,
		City:      o.City,
		Location:  o.Location,
		Parameter: o.Parameter,
	}
}
