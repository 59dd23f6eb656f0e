package order

import "strings"

const (
	BannerArtistSeries = "ARTIST SERIES"
	BannerRetouch      = "RETOUCH"
)

var artistPhrases = []string{"artist", "artistic", "brush strokes"}

// Banner is the overlay text drawn across the top of a row's unit, or "" when
// the row is neither an artist series piece nor holds an image listed for
// retouching.
func Banner(r OrderRow, retouch map[string]bool) string {
	artist := r.Row.Artist
	desc := " " + strings.Join(words(r.Row.Description), " ") + " "
	for _, p := range artistPhrases {
		if strings.Contains(desc, " "+p+" ") {
			artist = true
		}
	}
	touched := false
	for _, c := range r.Row.ImageCodes {
		if retouch[c] {
			touched = true
		}
	}
	switch {
	case artist && touched:
		return BannerArtistSeries + " + " + BannerRetouch
	case artist:
		return BannerArtistSeries
	case touched:
		return BannerRetouch
	}
	return ""
}
