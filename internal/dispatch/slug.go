package dispatch

import (
	"fmt"
	"math/rand/v2"
	"regexp"
)

var (
	adjectives = []string{
		"agile", "amber", "bold", "brave", "bright", "calm", "clever", "cosmic",
		"crisp", "daring", "eager", "fancy", "fierce", "gentle", "golden", "happy",
		"jolly", "keen", "lively", "lucky", "mellow", "mighty", "nimble", "noble",
		"proud", "quick", "quiet", "rapid", "shiny", "silent", "swift", "witty",
	}
	animals = []string{
		"badger", "bear", "beaver", "bison", "cobra", "crane", "dingo", "eagle",
		"falcon", "ferret", "fox", "gecko", "heron", "ibis", "jaguar", "koala",
		"lemur", "lion", "lynx", "marten", "moose", "otter", "owl", "panda",
		"puffin", "raven", "seal", "shark", "tiger", "walrus", "whale", "wolf",
	}
)

// SlugGenerator returns a fresh project slug.
type SlugGenerator func() string

// RandomSlug returns "adjective-animal-NN", e.g. "brave-lion-42".
func RandomSlug() string {
	return fmt.Sprintf("%s-%s-%02d",
		adjectives[rand.IntN(len(adjectives))],
		animals[rand.IntN(len(animals))],
		rand.IntN(100))
}

// dnsLabel is RFC 1123: lowercase alphanumerics and inner dashes, at most 63.
var dnsLabel = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// ValidSlug reports whether s can be used as a subdomain and a storage path
// segment.
func ValidSlug(s string) bool {
	return dnsLabel.MatchString(s)
}
