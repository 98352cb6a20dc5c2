package catalog

import (
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/booking"
)

// Criteria narrows the listing. Zero values match everything.
type Criteria struct {
	Search       string
	Date         time.Time
	RequireHotel bool
}

// Filter returns the offers matching criteria, preserving catalog order.
func Filter(offers []booking.Offer, criteria Criteria) []booking.Offer {
	search := strings.ToLower(strings.TrimSpace(criteria.Search))
	matched := make([]booking.Offer, 0, len(offers))
	for _, offer := range offers {
		if search != "" && !matchesSearch(offer, search) {
			continue
		}
		if !criteria.Date.IsZero() && !sameDay(offer.DepartureTime, criteria.Date) {
			continue
		}
		if criteria.RequireHotel && !offer.HotelIncluded() {
			continue
		}
		matched = append(matched, offer)
	}
	return matched
}

// Find returns the offer with the given id.
func Find(offers []booking.Offer, id booking.OfferID) (booking.Offer, bool) {
	for _, offer := range offers {
		if offer.ID == id {
			return offer, true
		}
	}
	return booking.Offer{}, false
}

func matchesSearch(offer booking.Offer, search string) bool {
	for _, field := range []string{offer.Destination, offer.TransportType, offer.Carrier} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

func sameDay(departure time.Time, day time.Time) bool {
	if departure.IsZero() {
		return false
	}
	departureYear, departureMonth, departureDay := departure.UTC().Date()
	year, month, date := day.UTC().Date()
	return departureYear == year && departureMonth == month && departureDay == date
}
