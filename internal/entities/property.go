package entities

import (
	"time"
)

type PropertyType string

const (
	PropertyTypeHouse       PropertyType = "House"
	PropertyTypeCondo       PropertyType = "Condo"
	PropertyTypeTownhouse   PropertyType = "Townhouse"
	PropertyTypeMultiFamily PropertyType = "Multi-Family"
	PropertyTypeLand        PropertyType = "Land"
	PropertyTypeCommercial  PropertyType = "Commercial"
)

type PropertyStatus string

const (
	PropertyStatusActive  PropertyStatus = "Active"
	PropertyStatusPending PropertyStatus = "Pending"
	PropertyStatusSold    PropertyStatus = "Sold"
	PropertyStatusRemoved PropertyStatus = "Removed"
)

// Address is embedded into the properties table with an "address_" column prefix.
type Address struct {
	Line1 string `gorm:"size:512" json:"line1"`
	Line2 string `gorm:"size:512" json:"line2,omitempty"`
	City  string `gorm:"index;size:128" json:"city"`
	State string `gorm:"size:32" json:"state"`
	Zip   string `gorm:"index;size:16" json:"zip"`

	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	// CoordinatesDefaulted is true when upstream had no coordinates and the
	// fallback point was stored instead.
	CoordinatesDefaulted bool `json:"coordinates_defaulted"`
}

type PropertyImage struct {
	URL     string `json:"url"`
	Caption string `json:"caption"`
	Order   int    `json:"order"`
}

type Property struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	ExternalID   string          `gorm:"uniqueIndex;size:128;not null" json:"external_id" validate:"required"`
	Title        string          `gorm:"size:512" json:"title"`
	Description  string          `gorm:"type:text" json:"description"`
	Price        float64         `gorm:"index" json:"price" validate:"gt=0"`
	ListDate     *time.Time      `json:"list_date,omitempty"`
	ModifiedAt   *time.Time      `json:"modified_at,omitempty"`
	Address      Address         `gorm:"embedded;embeddedPrefix:address_" json:"address"`
	PropertyType PropertyType    `gorm:"index;size:32" json:"property_type" validate:"required"`
	Status       PropertyStatus  `gorm:"index;size:16" json:"status" validate:"required"`
	Beds         int             `gorm:"index" json:"beds" validate:"gte=0"`
	Baths        int             `gorm:"index" json:"baths" validate:"gte=0"`
	Sqft         int             `json:"sqft,omitempty" validate:"gte=0"`
	LotSize      int             `json:"lot_size,omitempty" validate:"gte=0"`
	YearBuilt    *int            `json:"year_built,omitempty"`
	Images       []PropertyImage `gorm:"serializer:json" json:"images,omitempty"`
	Features     []string        `gorm:"serializer:json" json:"features,omitempty"`
	AgentID      *uint           `gorm:"index" json:"agent_id,omitempty"`
	Agent        *Agent          `gorm:"foreignKey:AgentID" json:"agent,omitempty"`
	Views        int             `json:"views"`
	Featured     bool            `gorm:"index" json:"featured"`
	// Raw is the upstream record exactly as received. It is never interpreted
	// by the service.
	Raw       []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Property) TableName() string {
	return "properties"
}

type Agent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ExternalAgentID string    `gorm:"uniqueIndex;size:128;not null" json:"external_agent_id"`
	Name            string    `gorm:"size:256" json:"name"`
	Email           string    `gorm:"size:256" json:"email,omitempty"`
	Phone           string    `gorm:"size:64" json:"phone,omitempty"`
	Active          bool      `gorm:"default:true" json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Agent) TableName() string {
	return "agents"
}
