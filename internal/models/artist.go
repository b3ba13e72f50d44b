package models

// Artist is a studio roster entry.
type Artist struct {
	ID     string `yaml:"id" json:"id"`
	Name   string `yaml:"name" json:"name"`
	Active bool   `yaml:"active" json:"active"`
}

// Slot is one bookable hour on a given day.
type Slot struct {
	Time      string `json:"time"`
	Time24    string `json:"time24"`
	Available bool   `json:"available"`
}

// Availability is the response of the availability endpoint.
type Availability struct {
	Success bool              `json:"success"`
	Artist  string            `json:"artist"`
	Month   string            `json:"month"`
	Slots   map[string][]Slot `json:"slots"`
}
