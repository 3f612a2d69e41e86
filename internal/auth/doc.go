// Package auth issues and verifies bind tokens.
//
// A bind token is an HS256 JWT minted by the worker when a binding is
// granted. Its jti carries the binding ID, and every command envelope sent
// over the binding's channel carries the token, which the worker verifies
// before executing the command. A token from a superseded binding, a token
// with a bad signature, or an expired token is rejected.
package auth
