// Package textutil sanitizes gallery titles and item names for use as
// directory and file names.
package textutil
