package types

import "strings"

// AddressSnapshot is the shipping address copied onto an order at
// materialization time. The source address record can be edited or deleted
// afterwards without affecting orders already placed.
type AddressSnapshot struct {
	Label   string `json:"label,omitempty"`
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// IsZero reports whether no address was captured.
func (a AddressSnapshot) IsZero() bool {
	return strings.TrimSpace(a.Street) == "" && strings.TrimSpace(a.City) == ""
}
