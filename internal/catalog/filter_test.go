package catalog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/booking"
)

func decodeListing(test *testing.T) []booking.Offer {
	test.Helper()
	var offers []booking.Offer
	require.NoError(test, json.Unmarshal([]byte(catalogPayload), &offers))
	return offers
}

func offerIDs(offers []booking.Offer) []booking.OfferID {
	ids := make([]booking.OfferID, 0, len(offers))
	for _, offer := range offers {
		ids = append(ids, offer.ID)
	}
	return ids
}

func TestFilter(test *testing.T) {
	test.Parallel()
	offers := decodeListing(test)
	testCases := []struct {
		name     string
		criteria Criteria
		expected []booking.OfferID
	}{
		{name: "no criteria", criteria: Criteria{}, expected: []booking.OfferID{1, 2, 3}},
		{name: "destination", criteria: Criteria{Search: "rome"}, expected: []booking.OfferID{1}},
		{name: "transport type", criteria: Criteria{Search: " TRAIN "}, expected: []booking.OfferID{2}},
		{name: "carrier", criteria: Criteria{Search: "coach"}, expected: []booking.OfferID{3}},
		{name: "departure day", criteria: Criteria{Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}, expected: []booking.OfferID{1, 3}},
		{name: "hotel required", criteria: Criteria{RequireHotel: true}, expected: []booking.OfferID{2}},
		{name: "combined", criteria: Criteria{Search: "a", Date: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), RequireHotel: true}, expected: []booking.OfferID{2}},
		{name: "no match", criteria: Criteria{Search: "berlin"}, expected: []booking.OfferID{}},
	}
	for _, testCase := range testCases {
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			require.Equal(test, testCase.expected, offerIDs(Filter(offers, testCase.criteria)))
		})
	}
}

func TestFind(test *testing.T) {
	test.Parallel()
	offers := decodeListing(test)

	offer, found := Find(offers, 2)
	require.True(test, found)
	require.Equal(test, "Milan", offer.Destination)

	_, found = Find(offers, 99)
	require.False(test, found)
}
