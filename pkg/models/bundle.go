package models

import "time"

// OutputBundle lists the artifacts stored for a date.
type OutputBundle struct {
	Date  string       `json:"date"`
	Dir   string       `json:"dir"`
	Files []BundleFile `json:"files"`
}

type BundleFile struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Has reports whether the bundle contains a file with the given name.
func (b *OutputBundle) Has(name string) bool {
	for _, f := range b.Files {
		if f.Name == name {
			return true
		}
	}

	return false
}
