// Package auth implements an invitation gated, server rendered authentication
// flow: login, reauthentication, password reset, invitations and signup.
//
// Sessions:
//   - A session carries the identity "{id}_{serial}" of the logged in user.
//     The serial is rotated whenever credentials change, so every identity
//     (and every remember token wrapping one) issued before the rotation stops
//     resolving to a user.
//   - Inactive users never resolve, regardless of serial.
//
// Invitations:
//   - An active user spends one of their remaining invitations to mint a
//     single use token. The counter decrement and the invitation row commit in
//     the same transaction.
//   - Signup redeems the token by linking the new user, again in a single
//     transaction. A token can be redeemed at most once.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by every flow. Sinks
//     run best-effort (errors are logged) so you can forward to a database or
//     queue without blocking authentication.
package auth
