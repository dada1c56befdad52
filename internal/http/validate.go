package http

import "regexp"

var roomIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// isValidRoomID checks that a room id is 1-64 characters of letters, digits,
// underscore or hyphen. Discord guild snowflakes always pass.
func isValidRoomID(s string) bool {
	return roomIDRe.MatchString(s)
}
