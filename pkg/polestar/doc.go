// Package polestar provides a client for the Polestar Connected Car GraphQL API.
//
// The package tracks the first vehicle on an account and exposes TTL-cached accessors for its
// odometer and battery data. A [Session] orchestrates the account: it authenticates through an
// [Authenticator] (see the auth package for the concrete implementation), discovers the vehicle,
// and stages fetched query results in an in-memory cache. Field reads address nested response
// values with slash-delimited paths, for example "eventUpdatedTimestamp/iso".
//
// All cache state lives in memory for the life of the Session. The API is queried with a small
// fixed set of GraphQL documents; this is not a general-purpose GraphQL client.
package polestar
