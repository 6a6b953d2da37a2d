// Package protocol implements the Votifier V2 wire format: the greeting line,
// the magic/length frame, the signed JSON envelope and the vote payload.
package protocol
