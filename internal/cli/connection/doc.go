// Package connection talks to a simulator's ops HTTP endpoint.
//
// Device traffic goes through internal/client over the Kinetic port;
// this package only reads the JSON status surface served next to it.
package connection
