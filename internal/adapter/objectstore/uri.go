// Package objectstore reads and writes objects on S3 and Google Cloud Storage
// behind a single Store interface addressed by s3:// and gs:// URIs.
package objectstore

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Supported URI schemes.
const (
	SchemeS3  = "s3"
	SchemeGCS = "gs"
)

// ErrMalformedURI is returned when a URI does not name a bucket and a key.
var ErrMalformedURI = errors.New("malformed object URI")

var uriPattern = regexp.MustCompile(`^(s3|gs)://([^/]+)/(.*?([^/]+)/?)$`)

// Location addresses one object, or a key prefix when Key ends in a slash.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseURI splits scheme://bucket/key. The key must contain at least one
// non-slash character.
func ParseURI(uri string) (Location, error) {
	m := uriPattern.FindStringSubmatch(uri)
	if m == nil {
		return Location{}, fmt.Errorf("%w: %q", ErrMalformedURI, uri)
	}
	return Location{Scheme: m[1], Bucket: m[2], Key: m[3]}, nil
}

// String formats the location back into a URI.
func (l Location) String() string {
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// Join appends a relative path to the key, treating the key as a directory.
func (l Location) Join(name string) Location {
	key := strings.TrimSuffix(l.Key, "/")
	name = strings.TrimPrefix(name, "/")
	if key == "" {
		l.Key = name
	} else {
		l.Key = key + "/" + name
	}
	return l
}
