package soulseek

import "github.com/jpdillingham/Soulseek.NET-sub005/internal/endpoint"

// Endpoint is an IPv4 address and TCP port pair, as reported by the
// server's GetPeerAddress response or a ConnectToPeer notification. Aliased
// from internal/endpoint so embedders implementing EndpointCache never need
// to import an internal package.
type Endpoint = endpoint.Endpoint

// OfflineEndpoint is the sentinel Endpoint meaning "user has no reachable
// address" (spec §4.4).
var OfflineEndpoint = endpoint.Offline
