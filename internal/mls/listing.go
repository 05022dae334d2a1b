package mls

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Listing is one upstream Property record. Only the fields the service maps
// are decoded; Raw keeps the record byte for byte.
type Listing struct {
	ListingID  string `json:"ListingId"`
	ListingKey string `json:"ListingKey"`

	ListingTitle          string   `json:"ListingTitle"`
	PublicRemarks         string   `json:"PublicRemarks"`
	ListPrice             *float64 `json:"ListPrice"`
	ListingContractDate   string   `json:"ListingContractDate"`
	ModificationTimestamp string   `json:"ModificationTimestamp"`
	StandardStatus        string   `json:"StandardStatus"`
	PropertyType          string   `json:"PropertyType"`

	UnparsedAddress  string   `json:"UnparsedAddress"`
	StreetNumber     string   `json:"StreetNumber"`
	StreetName       string   `json:"StreetName"`
	UnitNumber       string   `json:"UnitNumber"`
	City             string   `json:"City"`
	StateOrProvince  string   `json:"StateOrProvince"`
	PostalCode       string   `json:"PostalCode"`
	Latitude         Coordinate `json:"Latitude"`
	Longitude        Coordinate `json:"Longitude"`
	BedroomsTotal    int      `json:"BedroomsTotal"`
	BathroomsTotal   int      `json:"BathroomsTotalInteger"`
	LivingArea       float64  `json:"LivingArea"`
	LotSizeSquareFt  float64  `json:"LotSizeSquareFeet"`
	YearBuilt        int      `json:"YearBuilt"`
	InteriorFeatures []string `json:"InteriorFeatures"`
	Media            []Media  `json:"Media"`

	ListAgentMlsID       string `json:"ListAgentMlsId"`
	ListAgentFullName    string `json:"ListAgentFullName"`
	ListAgentEmail       string `json:"ListAgentEmail"`
	ListAgentDirectPhone string `json:"ListAgentDirectPhone"`

	Raw json.RawMessage `json:"-"`

	decodeErr error
}

type Media struct {
	MediaURL         string `json:"MediaURL"`
	ShortDescription string `json:"ShortDescription"`
}

// ExternalID is the identifier the listing is stored under.
func (l *Listing) ExternalID() string {
	if l.ListingID != "" {
		return l.ListingID
	}
	return l.ListingKey
}

// DecodeErr reports why the raw record could not be decoded, if it could not.
func (l *Listing) DecodeErr() error {
	return l.decodeErr
}

// DecodeListing parses one raw record and keeps a private copy of its bytes.
// When the record does not decode, the returned listing still carries its
// identifiers, its bytes and the decode error.
func DecodeListing(raw json.RawMessage) (Listing, error) {
	raw = append(json.RawMessage(nil), raw...)

	var listing Listing
	if err := json.Unmarshal(raw, &listing); err != nil {
		err = fmt.Errorf("failed to decode listing: %w", err)
		listing = salvageIDs(raw)
		listing.Raw = raw
		listing.decodeErr = err
		return listing, err
	}
	listing.Raw = raw
	return listing, nil
}

// salvageIDs reads only the identifiers of a record, accepting numbers
// where strings are expected.
func salvageIDs(raw json.RawMessage) Listing {
	var ids struct {
		ListingID  json.RawMessage `json:"ListingId"`
		ListingKey json.RawMessage `json:"ListingKey"`
	}
	if err := json.Unmarshal(raw, &ids); err != nil {
		return Listing{}
	}
	return Listing{ListingID: idText(ids.ListingID), ListingKey: idText(ids.ListingKey)}
}

func idText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// Coordinate is a latitude or longitude. Some feeds send it as a string;
// null and empty strings leave it unset.
type Coordinate struct {
	Value float64
	Valid bool
}

func (c *Coordinate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = Coordinate{}
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*c = Coordinate{}
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid coordinate %q", s)
		}
		*c = Coordinate{Value: v, Valid: true}
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = Coordinate{Value: v, Valid: true}
	return nil
}

// PropertyPage is the body of GET /Property.
type PropertyPage struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"@odata.nextLink,omitempty"`
}
