package mls

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeListing_StringCoordinates(t *testing.T) {
	listing, err := DecodeListing(json.RawMessage(`{"ListingId":"L-1","Latitude":"47.6","Longitude":" -122.3 "}`))
	require.NoError(t, err)

	assert.Equal(t, Coordinate{Value: 47.6, Valid: true}, listing.Latitude)
	assert.Equal(t, Coordinate{Value: -122.3, Valid: true}, listing.Longitude)
}

func TestDecodeListing_MissingCoordinates(t *testing.T) {
	tests := []struct {
		name   string
		record string
	}{
		{"absent", `{"ListingId":"L-1"}`},
		{"null", `{"ListingId":"L-1","Latitude":null,"Longitude":null}`},
		{"empty string", `{"ListingId":"L-1","Latitude":"","Longitude":" "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listing, err := DecodeListing(json.RawMessage(tt.record))
			require.NoError(t, err)
			assert.False(t, listing.Latitude.Valid)
			assert.False(t, listing.Longitude.Valid)
		})
	}
}

func TestDecodeListing_FailureKeepsIdentifiers(t *testing.T) {
	tests := []struct {
		name   string
		record string
		wantID string
	}{
		{"bad coordinate", `{"ListingId":"L-2","Latitude":"north"}`, "L-2"},
		{"bad field type", `{"ListingKey":"K-9","BedroomsTotal":"three"}`, "K-9"},
		{"numeric id", `{"ListingId":42}`, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := json.RawMessage(tt.record)
			listing, err := DecodeListing(raw)
			require.Error(t, err)

			assert.Equal(t, tt.wantID, listing.ExternalID())
			assert.Equal(t, err, listing.DecodeErr())
			assert.JSONEq(t, tt.record, string(listing.Raw))
		})
	}
}

func TestDecodeListing_CopiesRawBytes(t *testing.T) {
	raw := json.RawMessage(`{"ListingId":"L-1"}`)
	listing, err := DecodeListing(raw)
	require.NoError(t, err)

	raw[2] = 'X'
	assert.Equal(t, `{"ListingId":"L-1"}`, string(listing.Raw))
}
