// Package store holds the ordered product list of the selected farm.
//
// A Store is not safe for concurrent use; the controller that owns it
// serialises access.
package store

import (
	"github.com/tair/product-console/internal/catalog/domain"
)

// Store is the in-memory product list of one page session
type Store struct {
	farmID   string
	products []domain.Product
	epoch    uint64
}

// New creates an empty store
func New() *Store {
	return &Store{}
}

// Replace swaps in a freshly loaded product list wholesale
func (s *Store) Replace(farmID string, products []domain.Product) {
	copied := make([]domain.Product, len(products))
	copy(copied, products)
	s.farmID = farmID
	s.products = copied
	s.epoch++
}

// Clear empties the store (farm deselected)
func (s *Store) Clear() {
	s.farmID = ""
	s.products = nil
	s.epoch++
}

// FarmID returns the farm the products belong to
func (s *Store) FarmID() string {
	return s.farmID
}

// Epoch changes on every Replace and Clear so in-flight work can detect a reload
func (s *Store) Epoch() uint64 {
	return s.epoch
}

// Len returns the number of products
func (s *Store) Len() int {
	return len(s.products)
}

// Get returns a copy of the product at index
func (s *Store) Get(index int) (domain.Product, error) {
	if index < 0 || index >= len(s.products) {
		return domain.Product{}, domain.IndexOutOfRange(index, len(s.products))
	}
	return s.products[index], nil
}

// IndexOf finds the current position of a SKU
func (s *Store) IndexOf(sku string) (int, bool) {
	for i := range s.products {
		if s.products[i].SKU == sku {
			return i, true
		}
	}
	return -1, false
}

// SetField writes a description or the image path
func (s *Store) SetField(index int, field domain.FieldType, value string) error {
	if index < 0 || index >= len(s.products) {
		return domain.IndexOutOfRange(index, len(s.products))
	}

	p := &s.products[index]
	switch field {
	case domain.FieldShort:
		p.ShortDescription = value
	case domain.FieldLong:
		p.LongDescription = value
	case domain.FieldImages:
		p.ImagePath = value
	default:
		return domain.Validation("field " + string(field) + " holds no content")
	}
	return nil
}

// SetConfirmed flips the confirmation flag
func (s *Store) SetConfirmed(index int, confirmed bool) error {
	if index < 0 || index >= len(s.products) {
		return domain.IndexOutOfRange(index, len(s.products))
	}
	s.products[index].IsConfirmed = confirmed
	return nil
}

// Products returns a copy of the list in display order
func (s *Store) Products() []domain.Product {
	out := make([]domain.Product, len(s.products))
	copy(out, s.products)
	return out
}

// Counts returns confirmed and total product counts
func (s *Store) Counts() (confirmed, total int) {
	for i := range s.products {
		if s.products[i].IsConfirmed {
			confirmed++
		}
	}
	return confirmed, len(s.products)
}
