package readcomic

import "time"

// Comic is a listing entry
type Comic struct {
	Path      string `json:"path"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// Listing is one page of comics
type Listing struct {
	Comics  []Comic `json:"comics"`
	HasNext bool    `json:"has_next"`
}

// PublicationStatus is the status shown on a comic page
type PublicationStatus string

const (
	PublicationUnknown   PublicationStatus = "unknown"
	PublicationOngoing   PublicationStatus = "ongoing"
	PublicationCompleted PublicationStatus = "completed"
)

// Details describes a comic
type Details struct {
	Path      string            `json:"path"`
	Title     string            `json:"title"`
	Artist    string            `json:"artist,omitempty"`
	Writer    string            `json:"writer,omitempty"`
	Genres    []string          `json:"genres"`
	Summary   string            `json:"summary,omitempty"`
	Status    PublicationStatus `json:"status"`
	Thumbnail string            `json:"thumbnail,omitempty"`
	Chapters  []Chapter         `json:"chapters"`
}

// Chapter is an issue of a comic
type Chapter struct {
	Path     string    `json:"path"`
	Name     string    `json:"name"`
	Uploaded time.Time `json:"uploaded"`
}

// Page is one image of a chapter, indexed from 0
type Page struct {
	Index    int    `json:"index"`
	ImageURL string `json:"image_url"`
}
