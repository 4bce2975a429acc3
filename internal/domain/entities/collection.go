package entities

import (
	"strings"
	"time"
)

// Collection represents an NFT collection contract created through the factory
type Collection struct {
	ID              string    `json:"_id,omitempty"`
	Name            string    `json:"name"`
	Symbol          string    `json:"symbol"`
	Owner           string    `json:"owner"`
	ContractAddress string    `json:"contractAddress"`
	MetadataURI     string    `json:"metadataURI"`
	Description     string    `json:"description,omitempty"`
	Image           string    `json:"image,omitempty"`
	CreatedAt       time.Time `json:"createdAt,omitempty"`
}

// SameCollection reports whether two records describe the same collection.
// The contract address is authoritative; the storage id is only used when
// one of the records has no address yet.
func (c Collection) SameCollection(other Collection) bool {
	if c.ContractAddress != "" && other.ContractAddress != "" {
		return strings.EqualFold(c.ContractAddress, other.ContractAddress)
	}
	return c.ID != "" && c.ID == other.ID
}

// NeedsMetadata reports whether resolved metadata fields are still empty
func (c Collection) NeedsMetadata() bool {
	return c.MetadataURI != "" && c.Description == "" && c.Image == ""
}
