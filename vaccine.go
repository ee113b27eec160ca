package mtc

import "regexp"

// Product is a vaccine product and the minimum number of days MyTurn enforces
// between its first and second dose appointments.
type Product struct {
	Name         string
	IntervalDays int
}

var (
	ProductPfizer  = Product{Name: "pfizer", IntervalDays: 21}
	ProductModerna = Product{Name: "moderna", IntervalDays: 28}
)

// MyTurn does not expose the product on the location record, so it has to be
// detected from the display name.  Unrecognized names fall back to the Pfizer
// interval, the shortest MyTurn schedules.
var PfizerPattern = regexp.MustCompile(`(?i)pfizer`)
var ModernaPattern = regexp.MustCompile(`(?i)moderna`)

var productPatterns = []struct {
	pattern *regexp.Regexp
	product Product
}{
	{ModernaPattern, ProductModerna},
	{PfizerPattern, ProductPfizer},
}

func DetectProduct(locationName string) Product {
	for _, candidate := range productPatterns {
		if candidate.pattern.MatchString(locationName) {
			return candidate.product
		}
	}

	return ProductPfizer
}
