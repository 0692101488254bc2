// Package sanitizer cleans untrusted text before it is stored.
//
// Provider profile fields such as display names arrive from a third party and
// may carry markup. StripHTML reduces them to plain text:
//
//	name := sanitizer.StripHTML(`<b>Ada</b>   Lovelace<script>x()</script>`)
//	// name == "Ada Lovelace"
package sanitizer
