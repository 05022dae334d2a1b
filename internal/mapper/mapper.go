// Package mapper converts upstream MLS listing records into canonical
// properties. Map is pure: the same record always yields the same output.
package mapper

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mrlokans/mlssync/internal/entities"
	"github.com/mrlokans/mlssync/internal/mls"
)

// Fallback coordinates (downtown Seattle) for listings that arrive without a
// location. Rows that get them have Address.CoordinatesDefaulted set.
const (
	FallbackLongitude = -122.3321
	FallbackLatitude  = 47.6062

	defaultDescription = "No description available"
	defaultState       = "WA"
)

var propertyTypes = map[string]entities.PropertyType{
	"Residential":  entities.PropertyTypeHouse,
	"Condominium":  entities.PropertyTypeCondo,
	"Townhouse":    entities.PropertyTypeTownhouse,
	"Multi-Family": entities.PropertyTypeMultiFamily,
	"Land":         entities.PropertyTypeLand,
	"Commercial":   entities.PropertyTypeCommercial,
}

var statuses = map[string]entities.PropertyStatus{
	"Active":    entities.PropertyStatusActive,
	"Pending":   entities.PropertyStatusPending,
	"Closed":    entities.PropertyStatusSold,
	"Withdrawn": entities.PropertyStatusRemoved,
	"Expired":   entities.PropertyStatusRemoved,
}

var validate = validator.New()

// dateLayouts are tried in order for upstream date fields.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// MappingError reports an upstream record that cannot become a canonical property.
type MappingError struct {
	ExternalID string
	Reason     string
}

func (e *MappingError) Error() string {
	if e.ExternalID == "" {
		return "cannot map listing: " + e.Reason
	}
	return fmt.Sprintf("cannot map listing %s: %s", e.ExternalID, e.Reason)
}

// Canonical is a mapped listing: the property to store and the listing
// agent, when upstream named one. Property.AgentID is left for the caller.
type Canonical struct {
	Property *entities.Property
	Agent    *entities.Agent
}

// MapPropertyType translates an upstream property type; unknown values become House.
func MapPropertyType(upstream string) entities.PropertyType {
	if t, ok := propertyTypes[upstream]; ok {
		return t
	}
	return entities.PropertyTypeHouse
}

// MapStatus translates an upstream standard status; unknown values become Active.
func MapStatus(upstream string) entities.PropertyStatus {
	if s, ok := statuses[upstream]; ok {
		return s
	}
	return entities.PropertyStatusActive
}

// Map converts one upstream listing.
func Map(listing mls.Listing) (*Canonical, error) {
	externalID := listing.ExternalID()
	if err := listing.DecodeErr(); err != nil {
		return nil, &MappingError{ExternalID: externalID, Reason: err.Error()}
	}
	if externalID == "" {
		return nil, &MappingError{Reason: "listing has neither ListingId nor ListingKey"}
	}
	if listing.ListPrice == nil {
		return nil, &MappingError{ExternalID: externalID, Reason: "listing has no ListPrice"}
	}

	propertyType := MapPropertyType(listing.PropertyType)

	property := &entities.Property{
		ExternalID:   externalID,
		Title:        title(listing, propertyType),
		Description:  orDefault(listing.PublicRemarks, defaultDescription),
		Price:        *listing.ListPrice,
		ListDate:     parseDate(listing.ListingContractDate),
		ModifiedAt:   parseDate(listing.ModificationTimestamp),
		Address:      address(listing),
		PropertyType: propertyType,
		Status:       MapStatus(listing.StandardStatus),
		Beds:         listing.BedroomsTotal,
		Baths:        listing.BathroomsTotal,
		Sqft:         int(math.Round(listing.LivingArea)),
		LotSize:      int(math.Round(listing.LotSizeSquareFt)),
		Images:       images(listing.Media),
		Features:     features(listing.InteriorFeatures),
		Raw:          append([]byte(nil), listing.Raw...),
	}
	if listing.YearBuilt > 0 {
		year := listing.YearBuilt
		property.YearBuilt = &year
	}

	if err := validate.Struct(property); err != nil {
		return nil, &MappingError{ExternalID: externalID, Reason: validationReason(err)}
	}

	return &Canonical{Property: property, Agent: agent(listing)}, nil
}

func title(listing mls.Listing, propertyType entities.PropertyType) string {
	if t := strings.TrimSpace(listing.ListingTitle); t != "" {
		return t
	}

	typeName := listing.PropertyType
	if typeName == "" {
		typeName = string(propertyType)
	}
	city := cases.Title(language.English).String(strings.ToLower(strings.TrimSpace(listing.City)))

	return fmt.Sprintf("%d Bed %d Bath %s in %s", listing.BedroomsTotal, listing.BathroomsTotal, typeName, city)
}

func address(listing mls.Listing) entities.Address {
	line1 := strings.TrimSpace(listing.UnparsedAddress)
	if line1 == "" {
		line1 = strings.TrimSpace(listing.StreetNumber + " " + listing.StreetName)
	}

	addr := entities.Address{
		Line1: line1,
		Line2: strings.TrimSpace(listing.UnitNumber),
		City:  strings.TrimSpace(listing.City),
		State: orDefault(listing.StateOrProvince, defaultState),
		Zip:   strings.TrimSpace(listing.PostalCode),
	}

	if listing.Longitude.Valid && listing.Latitude.Valid {
		addr.Longitude = listing.Longitude.Value
		addr.Latitude = listing.Latitude.Value
	} else {
		addr.Longitude = FallbackLongitude
		addr.Latitude = FallbackLatitude
		addr.CoordinatesDefaulted = true
	}
	return addr
}

func images(media []mls.Media) []entities.PropertyImage {
	if len(media) == 0 {
		return nil
	}
	result := make([]entities.PropertyImage, 0, len(media))
	for i, m := range media {
		if m.MediaURL == "" {
			continue
		}
		result = append(result, entities.PropertyImage{
			URL:     m.MediaURL,
			Caption: m.ShortDescription,
			Order:   i,
		})
	}
	return result
}

func features(upstream []string) []string {
	if len(upstream) == 0 {
		return nil
	}
	return append([]string(nil), upstream...)
}

func agent(listing mls.Listing) *entities.Agent {
	id := strings.TrimSpace(listing.ListAgentMlsID)
	if id == "" {
		return nil
	}
	return &entities.Agent{
		ExternalAgentID: id,
		Name:            orDefault(listing.ListAgentFullName, id),
		Email:           strings.TrimSpace(listing.ListAgentEmail),
		Phone:           strings.TrimSpace(listing.ListAgentDirectPhone),
		Active:          true,
	}
}

// parseDate returns nil for absent or unparseable values; the wall clock is
// never used as a default.
func parseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func validationReason(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	reasons := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "gt":
			reasons = append(reasons, fmt.Sprintf("%s must be greater than %s, got %v", fe.StructField(), fe.Param(), fe.Value()))
		case "gte":
			reasons = append(reasons, fmt.Sprintf("%s must be at least %s, got %v", fe.StructField(), fe.Param(), fe.Value()))
		default:
			reasons = append(reasons, fmt.Sprintf("%s failed rule '%s'", fe.StructField(), fe.Tag()))
		}
	}
	return strings.Join(reasons, "; ")
}
