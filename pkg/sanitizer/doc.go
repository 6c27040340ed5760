// Package sanitizer normalizes user supplied profile data before it is
// validated and stored.
//
// All functions are idempotent. Invalid input is returned as close to the
// original as possible so validation can report it, or dropped from slices
// when it normalizes to an empty string.
//
// Normalization includes:
//   - Strings: collapse whitespace, trim leading/trailing spaces
//   - Emails and currency codes: trimmed and lowercased
//   - Calendar feed URLs: webcal schemes rewritten to https, lowercase host
//   - Slices: remove duplicates and empty values after normalization
package sanitizer
