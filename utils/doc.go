// Package utils provides small string helpers shared by the wire codec
// and the station registry.
package utils
