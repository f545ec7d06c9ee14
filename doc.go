// Package main provides the entry point of ldapgate, a web service that
// authenticates users against an LDAP or Active Directory server, directly,
// through an SSH tunnel or through an upstream ldapgate gateway.
package main
