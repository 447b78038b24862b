// Package toolserver maintains shared, cached connections to remote tool
// servers. The network protocol client is supplied by the caller as a
// Dialer; this package owns connection lifetime, credential expansion, and
// service-token minting, not the wire protocol.
package toolserver
