// Package settings holds the singleton server settings: public name,
// description and registration mode. Reads are public; writes require an
// owner access token.
package settings
