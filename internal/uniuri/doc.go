// Package uniuri generates short random identifiers used to correlate the
// log lines of one authentication attempt.
package uniuri
