// Package server implements the Votifier V2 protocol server.
//
// Server owns the listening socket and serves every accepted connection on
// its own goroutine. A connection runs a strictly ordered exchange from the
// challenge greeting to the status reply, and the vote is handed to the
// configured model.VoteSink before the reply is written.
//
// Failures to read the frame or to decode the envelope close the connection
// without a reply. Every later failure gets {"status":"error"}.
package server
